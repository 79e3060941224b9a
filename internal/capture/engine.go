package capture

import "context"

// EngineConfig mirrors the recognizer settings of the Web Speech API.
type EngineConfig struct {
	Lang            string `json:"lang"`
	Continuous      bool   `json:"continuous"`
	InterimResults  bool   `json:"interim_results"`
	MaxAlternatives int    `json:"max_alternatives"`
}

// Engine is the external speech recognizer. Start and Stop only issue
// requests; the outcome arrives later as events. Every run of the engine
// finishes with exactly one EventEnd, including runs that failed with an
// EventError.
type Engine interface {
	Start(cfg EngineConfig) error
	Stop() error
}

// Environment describes the runtime hosting the engine.
type Environment interface {
	Supported() bool
	SecureContext() bool
}

// Microphone confirms that the input device exists and may be opened.
// On success the caller must invoke release; on error the implementation
// has already released anything it opened.
type Microphone interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type EventType string

const (
	EventStart       EventType = "start"
	EventEnd         EventType = "end"
	EventError       EventType = "error"
	EventResult      EventType = "result"
	EventNoMatch     EventType = "nomatch"
	EventAudioStart  EventType = "audiostart"
	EventAudioEnd    EventType = "audioend"
	EventSoundStart  EventType = "soundstart"
	EventSoundEnd    EventType = "soundend"
	EventSpeechStart EventType = "speechstart"
	EventSpeechEnd   EventType = "speechend"
)

// Engine error codes the controller reacts to.
const (
	ErrorNoSpeech          = "no-speech"
	ErrorNotAllowed        = "not-allowed"
	ErrorServiceNotAllowed = "service-not-allowed"
	ErrorAudioCapture      = "audio-capture"
	ErrorAborted           = "aborted"
)

type Segment struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

type Event struct {
	Type        EventType `json:"type"`
	Error       string    `json:"error,omitempty"`
	Results     []Segment `json:"results,omitempty"`
	ResultIndex int       `json:"result_index,omitempty"`
}
