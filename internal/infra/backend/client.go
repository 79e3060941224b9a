// Package backend talks to the meal-planning REST API: ingredient storage,
// delivery settings, the delivery trigger and the voicebot NLU endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"mealvoice/internal/domain"
	"mealvoice/internal/infra"
	"mealvoice/internal/metrics"
)

const (
	maxResponseBytes = 1 << 20
	maxDetailBytes   = 200
)

type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are cleared.
	Interval time.Duration
	// Timeout an open breaker waits before going half-open.
	Timeout time.Duration
	// MinRequests before the failure ratio is considered.
	MinRequests  uint32
	FailureRatio float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

type Config struct {
	BaseURL string
	// VoicebotURL hosts /voicebot/process. Empty means BaseURL.
	VoicebotURL string
	Timeout     time.Duration
	Retry       infra.RetryConfig
	Breaker     BreakerConfig
}

type Client struct {
	baseURL     string
	voicebotURL string
	tokens      TokenSource
	httpClient  *http.Client
	retry       infra.RetryConfig
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
}

func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	voicebotURL := strings.TrimSuffix(cfg.VoicebotURL, "/")
	if voicebotURL == "" {
		voicebotURL = baseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = infra.DefaultRetryConfig()
	}
	if cfg.Breaker.MinRequests == 0 {
		cfg.Breaker = DefaultBreakerConfig()
	}

	c := &Client{
		baseURL:     baseURL,
		voicebotURL: voicebotURL,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		retry:       cfg.Retry,
		logger:      logger,
	}

	bc := cfg.Breaker
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= bc.MinRequests && failureRatio >= bc.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: isBreakerSuccess,
	})
	metrics.BreakerState.WithLabelValues("backend").Set(0)

	return c
}

// AddIngredient is not retried: a lost response would otherwise add the
// ingredient twice.
func (c *Client) AddIngredient(ctx context.Context, ing domain.Ingredient) error {
	return c.do(ctx, call{
		op:     "add_ingredient",
		method: http.MethodPost,
		url:    c.baseURL + "/ingredients/",
		body:   ing,
	})
}

func (c *Client) DeleteIngredient(ctx context.Context, name string) error {
	return c.do(ctx, call{
		op:     "delete_ingredient",
		method: http.MethodDelete,
		url:    c.baseURL + "/ingredients/" + url.PathEscape(name),
		retry:  true,
	})
}

func (c *Client) UpdateDelivery(ctx context.Context, settings domain.DeliverySettings) error {
	if err := ValidateDeliverySettings(settings); err != nil {
		return err
	}
	return c.do(ctx, call{
		op:     "update_delivery",
		method: http.MethodPut,
		url:    c.baseURL + "/auth/me/delivery",
		body:   settings,
		retry:  true,
	})
}

func (c *Client) RunDelivery(ctx context.Context, run domain.DeliveryRun) (*domain.DeliveryRunResult, error) {
	var result domain.DeliveryRunResult
	err := c.do(ctx, call{
		op:     "run_delivery",
		method: http.MethodPost,
		url:    c.baseURL + "/agentic/run",
		body:   run,
		out:    &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SendNow(ctx context.Context, selectedTime string) (*domain.SendResult, error) {
	var result domain.SendResult
	err := c.do(ctx, call{
		op:     "send_now",
		method: http.MethodPost,
		url:    c.baseURL + "/whatsapp/send",
		body:   map[string]string{"selected_time": selectedTime},
		out:    &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type processRequest struct {
	Command string         `json:"command"`
	Context processContext `json:"context"`
}

type processContext struct {
	Locale string `json:"locale"`
}

type processResponse struct {
	ResponseMessage string `json:"response_message"`
}

// Process forwards a command the local parser could not handle to the
// voicebot endpoint and returns its reply.
func (c *Client) Process(ctx context.Context, command, locale string) (string, error) {
	var resp processResponse
	err := c.do(ctx, call{
		op:     "voicebot_process",
		method: http.MethodPost,
		url:    c.voicebotURL + "/voicebot/process",
		body:   processRequest{Command: command, Context: processContext{Locale: locale}},
		out:    &resp,
		retry:  true,
	})
	if err != nil {
		return "", err
	}
	return resp.ResponseMessage, nil
}

type call struct {
	op     string
	method string
	url    string
	body   any
	out    any
	retry  bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	var payload []byte
	if cl.body != nil {
		var err error
		payload, err = json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", cl.op, err)
		}
	}

	attempt := func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.send(ctx, cl, payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.BackendRequests.WithLabelValues(cl.op, "breaker_open").Inc()
			return infra.Permanent(fmt.Errorf("%s: %w: %v", cl.op, domain.ErrBackendRejection, err))
		}
		return err
	}

	retry := c.retry
	if !cl.retry {
		retry.MaxAttempts = 1
	}
	if err := infra.WithRetry(ctx, retry, attempt); err != nil {
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, cl call, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url, body)
	if err != nil {
		return infra.Permanent(fmt.Errorf("creating request: %w", err))
	}

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return infra.Permanent(fmt.Errorf("getting access token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(cl.op, "transport_error").Inc()
		return fmt.Errorf("sending %s request: %w: %w", cl.op, domain.ErrBackendRejection, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading %s response: %w: %w", cl.op, domain.ErrBackendRejection, err)
	}
	metrics.BackendRequests.WithLabelValues(cl.op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		be := &domain.BackendError{Op: cl.op, Status: resp.StatusCode, Detail: parseDetail(respBody)}
		c.logger.Warn("backend request failed",
			"op", cl.op,
			"status", resp.StatusCode,
			"detail", be.Detail,
			"request_id", requestID,
		)
		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return be
		}
		return infra.Permanent(be)
	}

	if cl.out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, cl.out); err != nil {
			return infra.Permanent(fmt.Errorf("parsing %s response: %w", cl.op, err))
		}
	}
	return nil
}

// isBreakerSuccess keeps client errors from tripping the breaker. Only
// transport failures and retryable statuses count against the backend.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var be *domain.BackendError
	if errors.As(err, &be) {
		return !infra.IsRetryableHTTPStatus(be.Status)
	}
	return infra.IsPermanent(err) || errors.Is(err, context.Canceled)
}

// parseDetail extracts the error message of a FastAPI error body. Validation
// errors carry a list of {"msg": ...} objects instead of a string.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxDetailBytes {
		cut := maxDetailBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
