package session

import (
	"context"

	"github.com/msto63/krishisaathi/internal/backend"
	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/voice"
)

// SpeechCapturePort records one utterance and returns its transcript.
// Listen blocks until speech ends, fails, or ctx is cancelled.
type SpeechCapturePort interface {
	Listen(ctx context.Context, localeTag string) (string, error)
}

// Utterance is one piece of text to speak
type Utterance struct {
	Text      string
	VoiceID   string
	LocaleTag string
	Rate      float64
}

// SpeechSynthesisPort enumerates voices and speaks text.
// Speak blocks until playback ends; cancelling ctx stops audio at once.
type SpeechSynthesisPort interface {
	Voices(ctx context.Context) ([]voice.Candidate, error)
	Speak(ctx context.Context, u Utterance) error
}

// VoiceWatcher is implemented by synthesis ports whose voice list can
// change after startup
type VoiceWatcher interface {
	VoicesChanged() <-chan struct{}
}

// Router delivers one user message to the backend
type Router interface {
	Route(ctx context.Context, message, languageID, userID string) (backend.Result, error)
}

// Catalog resolves and lists languages
type Catalog interface {
	Resolve(id string) (language.Language, error)
	List() []language.Language
}
