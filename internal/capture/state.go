package capture

type State int

const (
	StateIdle State = iota
	StatePermissionCheck
	StateStarting
	StateListening
	StateResult
	StateRetrying
	StateLocaleFallback
	StateStopping
	StateEnded
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePermissionCheck:
		return "permission_check"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateResult:
		return "result"
	case StateRetrying:
		return "retrying"
	case StateLocaleFallback:
		return "locale_fallback"
	case StateStopping:
		return "stopping"
	case StateEnded:
		return "ended"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Live reports whether a listening session is in progress. Idle and the
// terminal states accept a new Start.
func (s State) Live() bool {
	switch s {
	case StateIdle, StateEnded, StateFatal:
		return false
	default:
		return true
	}
}

// engineRunning is true while the engine may still deliver events for the
// current run and has not been asked to stop.
func (s State) engineRunning() bool {
	return s == StateStarting || s == StateListening || s == StateResult
}

// Session is the state of one listening episode. It may span several engine
// runs because of auto-restarts.
type Session struct {
	ID                    string
	State                 State
	UserWantsListening    bool
	NoSpeechRetryUsed     bool
	LocaleFallbackApplied bool
	ActiveLocale          string
	Restarts              int
}
