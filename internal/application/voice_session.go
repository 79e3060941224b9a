package application

import (
	"context"
	"log/slog"
	"strings"

	"mealvoice/internal/capture"
	"mealvoice/internal/domain"
	"mealvoice/internal/intent"
	"mealvoice/internal/metrics"
)

type Control int

const (
	ControlNone Control = iota
	ControlListen
	ControlStop
)

// HostMessage is one item of a host's ordered input: a user request when
// Control is set, an engine event otherwise.
type HostMessage struct {
	Control Control
	Event   capture.Event
}

func ControlMessage(c Control) HostMessage {
	return HostMessage{Control: c}
}

func EventMessage(ev capture.Event) HostMessage {
	return HostMessage{Event: ev}
}

// EngineHost is one connected speech engine: the recognizer itself, the
// runtime it lives in and the microphone it records from.
type EngineHost interface {
	capture.Engine
	capture.Environment
	capture.Microphone

	// Locale is the language the user picked on the host.
	Locale() string
	// Messages delivers events and user requests in the order the host
	// produced them.
	Messages() <-chan HostMessage
	// Done is closed when the host disconnects.
	Done() <-chan struct{}
}

// SessionUI shows what a voice session produces. Methods may be called from
// the session loop and from the dispatch worker.
type SessionUI interface {
	ChangeObserver
	ShowStatus(capture.Status)
	ShowTranscript(domain.Transcript)
	ShowOutcome(Outcome)
}

type VoiceSessionConfig struct {
	FallbackLocale string
	// QueueSize bounds final transcripts waiting for dispatch.
	QueueSize int
}

type command struct {
	text   string
	locale string
}

// VoiceSession wires one engine host to the parser and dispatcher. The
// capture controller is owned by the Run goroutine; commands are executed in
// order by a separate worker so slow backend calls never delay engine events.
type VoiceSession struct {
	host       EngineHost
	ui         SessionUI
	dispatcher *Dispatcher
	cfg        VoiceSessionConfig
	logger     *slog.Logger

	controller *capture.Controller
	queue      chan command
}

func NewVoiceSession(host EngineHost, ui SessionUI, dispatcher *Dispatcher, cfg VoiceSessionConfig, logger *slog.Logger) *VoiceSession {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	s := &VoiceSession{
		host:       host,
		ui:         ui,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		queue:      make(chan command, cfg.QueueSize),
	}
	s.controller = capture.NewController(host, host, host, s, capture.Config{
		Locale:         host.Locale(),
		FallbackLocale: cfg.FallbackLocale,
	}, logger)
	return s
}

// Run drives the session until ctx is cancelled or the host disconnects.
func (s *VoiceSession) Run(ctx context.Context) error {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	unsubscribe := s.dispatcher.Subscribe(s.ui)
	defer unsubscribe()

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatchLoop(workerCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	s.logger.Info("voice session ready", "locale", s.host.Locale())

	for {
		select {
		case <-ctx.Done():
			s.controller.Stop()
			return ctx.Err()

		case <-s.host.Done():
			s.logger.Info("engine host disconnected")
			return nil

		case msg := <-s.host.Messages():
			switch msg.Control {
			case ControlNone:
				s.controller.HandleEvent(msg.Event)
			case ControlListen:
				if err := s.controller.Start(ctx); err != nil {
					s.logger.Warn("starting listening session", "error", err)
				}
			case ControlStop:
				s.controller.Stop()
			}
		}
	}
}

// OnStatus implements capture.Listener.
func (s *VoiceSession) OnStatus(st capture.Status) {
	s.ui.ShowStatus(st)
}

// OnTranscript implements capture.Listener. Final transcripts are queued for
// dispatch in the locale they were recognized in.
func (s *VoiceSession) OnTranscript(t domain.Transcript) {
	s.ui.ShowTranscript(t)
	if !t.IsFinal {
		return
	}

	cmd := command{text: t.Text, locale: s.controller.Session().ActiveLocale}
	select {
	case s.queue <- cmd:
	default:
		s.logger.Warn("dropping command, dispatch queue full", "text", t.Text)
		s.ui.ShowOutcome(Outcome{Message: msgActionFailed, Err: domain.ErrBackendRejection})
	}
}

func (s *VoiceSession) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.queue:
			s.ui.ShowOutcome(ExecuteText(ctx, s.dispatcher, cmd.text, cmd.locale))
		}
	}
}

// ExecuteText parses text and dispatches the resulting intent. It is the
// shared path for spoken and typed commands.
func ExecuteText(ctx context.Context, d *Dispatcher, text, locale string) Outcome {
	text = strings.TrimSpace(text)
	in := intent.ParseLocalized(text, locale)
	return d.Dispatch(ctx, in, locale)
}
