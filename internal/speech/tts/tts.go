// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     tts
// Description: Text-to-speech ports - macOS say, Piper and text-only
// Author:      Mike Stoffels
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/internal/voice"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// ErrUnknownVoice is returned by Speak for a voice the engine does not offer
var ErrUnknownVoice = errors.New("unknown voice")

// DefaultRate is the relative speaking rate used when an utterance has none
const DefaultRate = 0.8

// Silent is the text-only synthesis port. It offers no voices, so the
// session shows replies without speaking them.
type Silent struct{}

// Voices returns an empty list
func (Silent) Voices(context.Context) ([]voice.Candidate, error) {
	return nil, nil
}

// Speak returns immediately
func (Silent) Speak(ctx context.Context, _ session.Utterance) error {
	return ctx.Err()
}

// Options selects and configures a synthesis engine
type Options struct {
	Engine    string // say, piper or none
	Rate      float64
	PiperBin  string
	ModelsDir string
	Logger    *logging.Logger
}

// New returns the synthesis port for opts.Engine
func New(opts Options) (session.SpeechSynthesisPort, error) {
	switch opts.Engine {
	case "", "none":
		return Silent{}, nil
	case "say":
		return NewSay(), nil
	case "piper":
		return NewPiper(PiperConfig{
			BinaryPath: opts.PiperBin,
			ModelsDir:  opts.ModelsDir,
			Logger:     opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown synthesis engine %q", opts.Engine)
	}
}

func rateOrDefault(rate float64) float64 {
	if rate <= 0 {
		return DefaultRate
	}
	return rate
}
