// Package capture drives an external speech recognizer through permission,
// retry and locale-fallback transitions.
//
// The Controller is not safe for concurrent use. Start, Stop and HandleEvent
// must all be called from the goroutine that owns the session. A new engine
// run is only requested once the previous run reported its end event, so at
// most one engine start is outstanding at any time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"mealvoice/internal/domain"
	"mealvoice/internal/metrics"
)

const DefaultFallbackLocale = "en-US"

const (
	msgRequestingMic  = "Requesting microphone access..."
	msgListening      = "Listening..."
	msgProcessing     = "Processing..."
	msgSoundDetected  = "Sound detected..."
	msgSpeechDetected = "Speech detected..."
	msgNoMatch        = "Couldn't understand. Please try again."
	msgStopped        = "Stopped listening"
	msgRetryOnce      = "No speech detected. Retrying once..."
	msgNoSpeechGiveUp = "No speech detected. Try again and speak clearly."
	msgMicBlocked     = "Microphone access blocked. Enable mic permissions in browser settings."
	msgNoMic          = "No microphone found. Please connect a microphone and try again."
	msgMicBusy        = "Microphone is already in use by another application."
	msgUnsupported    = "Speech recognition not supported. Please use Chrome or Edge."
	msgInsecure       = "Voice recognition requires HTTPS or localhost"
	msgCouldNotStart  = "Could not start mic. Click allow mic access and try again."
	msgSpeechErrorFmt = "Speech error: %s"
	msgFallbackFmt    = "No speech detected. Switching to %s and retrying..."
	msgMicErrorFmt    = "Microphone error: %s"
)

// Status is a human-readable progress report. Err is set when the session
// failed and the user has to act.
type Status struct {
	SessionID string
	State     State
	Message   string
	Err       error
}

// Listener receives everything the controller produces. Calls happen on the
// goroutine that drives the controller.
type Listener interface {
	OnStatus(Status)
	OnTranscript(domain.Transcript)
}

type Config struct {
	Locale         string
	FallbackLocale string
}

type Controller struct {
	engine   Engine
	env      Environment
	mic      Microphone
	listener Listener
	cfg      Config
	logger   *slog.Logger

	session Session
	endErr  error
	// engineActive is set from a successful engine.Start until the end
	// event of that run.
	engineActive bool
	// pendingStart holds a Start requested while the previous run was
	// still finishing. It runs when that run's end event arrives.
	pendingStart context.Context
}

func NewController(engine Engine, env Environment, mic Microphone, listener Listener, cfg Config, logger *slog.Logger) *Controller {
	if cfg.Locale == "" {
		cfg.Locale = DefaultFallbackLocale
	}
	if cfg.FallbackLocale == "" {
		cfg.FallbackLocale = DefaultFallbackLocale
	}
	return &Controller{
		engine:   engine,
		env:      env,
		mic:      mic,
		listener: listener,
		cfg:      cfg,
		logger:   logger,
	}
}

// Session returns a copy of the current session state.
func (c *Controller) Session() Session {
	return c.session
}

func (c *Controller) State() State {
	return c.session.State
}

// SetLocale changes the preferred locale used by the next Start.
func (c *Controller) SetLocale(locale string) {
	if locale != "" {
		c.cfg.Locale = locale
	}
}

// Start begins a listening session. It is a no-op while a session is live.
// While the previous engine run is still finishing, the request is held
// until its end event.
func (c *Controller) Start(ctx context.Context) error {
	if c.engineActive && (c.session.State == StateStopping || !c.session.State.Live()) {
		c.logger.Debug("deferring start until the engine ends", "session", c.session.ID, "state", c.session.State)
		c.pendingStart = ctx
		return nil
	}
	if c.session.State.Live() {
		return nil
	}

	if !c.env.Supported() {
		c.reject(msgUnsupported, domain.ErrRecognitionUnsupported)
		return domain.ErrRecognitionUnsupported
	}
	if !c.env.SecureContext() {
		c.reject(msgInsecure, domain.ErrInsecureContext)
		return domain.ErrInsecureContext
	}

	c.session = Session{
		ID:           uuid.NewString(),
		State:        StatePermissionCheck,
		ActiveLocale: c.cfg.Locale,
	}
	c.endErr = nil
	c.report(msgRequestingMic, nil)

	if err := c.probeMicrophone(ctx); err != nil {
		c.fail(microphoneMessage(err), err)
		return err
	}

	c.session.UserWantsListening = true
	if err := c.startEngine(); err != nil {
		c.fail(msgCouldNotStart, err)
		return err
	}

	c.logger.Info("listening session started", "session", c.session.ID, "locale", c.session.ActiveLocale)
	return nil
}

// Stop ends the session at the next engine end event. Pending restarts are
// dropped because the end handler sees UserWantsListening == false.
func (c *Controller) Stop() {
	c.session.UserWantsListening = false
	c.pendingStart = nil

	switch c.session.State {
	case StateStarting, StateListening, StateResult:
		c.session.State = StateStopping
		if err := c.engine.Stop(); err != nil {
			c.logger.Warn("stopping engine", "session", c.session.ID, "error", err)
			c.session.State = StateEnded
			c.engineActive = false
		}
		c.report(msgStopped, nil)
	case StateRetrying, StateLocaleFallback:
		// the engine is already finishing its run
		c.session.State = StateStopping
		c.report(msgStopped, nil)
	}
}

// HandleEvent applies one engine callback to the session.
func (c *Controller) HandleEvent(ev Event) {
	if ev.Type == EventEnd {
		c.handleEnd()
		return
	}
	if !c.session.State.Live() {
		c.logger.Debug("ignoring engine event outside a session", "event", ev.Type, "state", c.session.State)
		return
	}

	switch ev.Type {
	case EventStart:
		if c.session.State == StateStarting {
			c.session.State = StateListening
			c.report(msgListening, nil)
		}
	case EventError:
		c.handleError(ev.Error)
	case EventResult:
		c.handleResult(ev)
	case EventNoMatch:
		c.progress(msgNoMatch)
	case EventAudioStart:
		c.progress(msgListening)
	case EventSoundStart:
		c.progress(msgSoundDetected)
	case EventSpeechStart:
		c.progress(msgSpeechDetected)
	case EventAudioEnd, EventSoundEnd, EventSpeechEnd:
		c.progress(msgProcessing)
	default:
		c.logger.Debug("unhandled engine event", "event", ev.Type)
	}
}

func (c *Controller) handleEnd() {
	c.engineActive = false

	if !c.session.State.Live() {
		// end of a run that already failed
		c.resumeStart()
		return
	}
	if c.session.State == StatePermissionCheck {
		return
	}

	if !c.session.UserWantsListening {
		c.session.State = StateEnded
		if c.endErr != nil {
			c.report(msgNoSpeechGiveUp, c.endErr)
		} else {
			c.report(msgStopped, nil)
		}
		c.logger.Info("listening session ended", "session", c.session.ID, "restarts", c.session.Restarts)
		c.resumeStart()
		return
	}

	reason := "auto"
	switch c.session.State {
	case StateRetrying:
		reason = "no_speech_retry"
	case StateLocaleFallback:
		reason = "locale_fallback"
	}

	c.session.Restarts++
	metrics.EngineRestarts.WithLabelValues(reason).Inc()
	c.logger.Debug("restarting engine", "session", c.session.ID, "reason", reason, "locale", c.session.ActiveLocale)

	if err := c.startEngine(); err != nil {
		c.fail(msgCouldNotStart, err)
	}
}

func (c *Controller) handleError(code string) {
	switch code {
	case ErrorNotAllowed, ErrorServiceNotAllowed:
		c.fail(msgMicBlocked, domain.ErrPermissionDenied)
	case ErrorAudioCapture:
		c.fail(msgNoMic, domain.ErrDeviceUnavailable)
	case ErrorNoSpeech:
		c.handleNoSpeech()
	case ErrorAborted:
		// produced by our own Stop
	default:
		c.logger.Warn("speech engine error", "session", c.session.ID, "code", code)
		c.progress(fmt.Sprintf(msgSpeechErrorFmt, code))
	}
}

func (c *Controller) handleNoSpeech() {
	if c.session.State == StateStopping {
		return
	}

	switch {
	case !c.session.NoSpeechRetryUsed:
		c.session.NoSpeechRetryUsed = true
		c.session.State = StateRetrying
		c.report(msgRetryOnce, nil)
	case !c.session.LocaleFallbackApplied:
		c.session.LocaleFallbackApplied = true
		c.session.ActiveLocale = c.cfg.FallbackLocale
		c.session.State = StateLocaleFallback
		c.report(fmt.Sprintf(msgFallbackFmt, localeDisplayName(c.cfg.FallbackLocale)), nil)
	default:
		c.session.UserWantsListening = false
		c.session.State = StateStopping
		c.endErr = domain.ErrNoSpeechDetected
		metrics.CaptureFailures.WithLabelValues("no_speech").Inc()
		c.logger.Info("no speech after fallback, ending session", "session", c.session.ID)
	}
}

func (c *Controller) handleResult(ev Event) {
	var interim, final strings.Builder
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}
	for i := start; i < len(ev.Results); i++ {
		if ev.Results[i].IsFinal {
			final.WriteString(ev.Results[i].Transcript)
		} else {
			interim.WriteString(ev.Results[i].Transcript)
		}
	}

	finalText := strings.TrimSpace(final.String())
	if finalText == "" {
		if text := strings.TrimSpace(interim.String()); text != "" {
			c.listener.OnTranscript(domain.Transcript{Text: text})
		}
		return
	}

	c.session.NoSpeechRetryUsed = false
	c.session.LocaleFallbackApplied = false

	running := c.session.State.engineRunning()
	if running {
		c.session.State = StateResult
	}
	c.report(msgProcessing, nil)
	c.listener.OnTranscript(domain.Transcript{Text: finalText, IsFinal: true})
	if running && c.session.State == StateResult {
		c.session.State = StateListening
	}
}

func (c *Controller) startEngine() error {
	cfg := EngineConfig{
		Lang:            c.session.ActiveLocale,
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 1,
	}
	if err := c.engine.Start(cfg); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	c.engineActive = true
	c.session.State = StateStarting
	return nil
}

// resumeStart runs a Start that was held while the engine finished.
func (c *Controller) resumeStart() {
	ctx := c.pendingStart
	if ctx == nil {
		return
	}
	c.pendingStart = nil
	if err := c.Start(ctx); err != nil {
		c.logger.Warn("deferred start failed", "session", c.session.ID, "error", err)
	}
}

// probeMicrophone opens the device only long enough to confirm access.
func (c *Controller) probeMicrophone(ctx context.Context) error {
	release, err := c.mic.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("probing microphone: %w", err)
	}
	defer release()
	return nil
}

// fail moves the session to Fatal. Nothing restarts from there.
func (c *Controller) fail(message string, err error) {
	c.session.UserWantsListening = false
	c.session.State = StateFatal
	metrics.CaptureFailures.WithLabelValues(failureReason(err)).Inc()
	c.logger.Warn("listening session failed", "session", c.session.ID, "error", err)
	c.report(message, err)
}

// reject reports a precondition failure without touching the session.
func (c *Controller) reject(message string, err error) {
	metrics.CaptureFailures.WithLabelValues(failureReason(err)).Inc()
	c.listener.OnStatus(Status{State: c.session.State, Message: message, Err: err})
}

func (c *Controller) report(message string, err error) {
	c.listener.OnStatus(Status{
		SessionID: c.session.ID,
		State:     c.session.State,
		Message:   message,
		Err:       err,
	})
}

// progress reports engine activity while the session is healthy.
func (c *Controller) progress(message string) {
	if c.session.State == StateStopping {
		return
	}
	c.report(message, nil)
}

func microphoneMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Microphone permission denied. Please allow microphone access in your browser settings."
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return msgNoMic
	case errors.Is(err, domain.ErrDeviceBusy):
		return msgMicBusy
	default:
		return fmt.Sprintf(msgMicErrorFmt, errors.Unwrap(err))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRecognitionUnsupported):
		return "unsupported"
	case errors.Is(err, domain.ErrInsecureContext):
		return "insecure_context"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, domain.ErrDeviceBusy):
		return "device_busy"
	default:
		return "engine"
	}
}

func localeDisplayName(locale string) string {
	switch strings.ToLower(locale) {
	case "en-us":
		return "English (US)"
	case "en-gb":
		return "English (UK)"
	default:
		return locale
	}
}
