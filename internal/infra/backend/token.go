package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSource supplies the bearer token sent with every backend call.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a pre-issued access token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("backend token not configured")
	}
	return string(t), nil
}

// JWTSource mints HS256 access tokens with the backend's signing secret, the
// way the backend's own login does. A token is reused until it is close to
// expiry.
type JWTSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = time.Minute

func NewJWTSource(secret, subject string, ttl time.Duration) *JWTSource {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &JWTSource{
		secret:  []byte(secret),
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *JWTSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	s.token = signed
	s.expires = expires
	return signed, nil
}
