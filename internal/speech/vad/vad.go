// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     vad
// Description: Voice activity detection and end-of-speech tracking
// Author:      Mike Stoffels
// Created:     2026-09-28
// License:     MIT
// ============================================================================

package vad

import (
	"time"
)

// Detector classifies audio frames as speech or silence
type Detector interface {
	// Process reports whether samples contain speech
	Process(samples []float32) (bool, error)

	// Close releases resources
	Close() error
}

// Config holds VAD configuration
type Config struct {
	// SampleRate is the audio sample rate (8000, 16000, 32000 or 48000)
	SampleRate int

	// Mode is the WebRTC aggressiveness (0-3, higher filters more)
	Mode int

	// SilenceDuration is how long silence must last to end speech
	SilenceDuration time.Duration

	// MinSpeechDuration is the minimum speech duration to be considered valid
	MinSpeechDuration time.Duration

	// MaxDuration caps one recording, speech or not
	MaxDuration time.Duration
}

// DefaultConfig returns default VAD configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Mode:              2,
		SilenceDuration:   1500 * time.Millisecond,
		MinSpeechDuration: 300 * time.Millisecond,
		MaxDuration:       30 * time.Second,
	}
}

// SpeechState is a snapshot of a SpeechTracker
type SpeechState struct {
	IsSpeaking      bool
	SpeechDuration  time.Duration
	SilenceDuration time.Duration
	Elapsed         time.Duration
}

// SpeechTracker decides when a recording is complete. It is driven by
// audio time, one Update per frame, so results do not depend on
// scheduling.
type SpeechTracker struct {
	config  Config
	state   SpeechState
	started bool
}

// NewSpeechTracker creates a new speech tracker
func NewSpeechTracker(cfg Config) *SpeechTracker {
	return &SpeechTracker{config: cfg}
}

// Update advances the tracker by one frame of length frame
func (t *SpeechTracker) Update(isSpeech bool, frame time.Duration) SpeechState {
	t.state.Elapsed += frame

	if isSpeech {
		t.started = true
		t.state.IsSpeaking = true
		t.state.SpeechDuration += t.state.SilenceDuration + frame
		t.state.SilenceDuration = 0
		return t.state
	}

	if t.started {
		t.state.SilenceDuration += frame
		if t.state.SilenceDuration >= t.config.SilenceDuration {
			t.state.IsSpeaking = false
		}
	}
	return t.state
}

// ShouldEndRecording reports whether capture should stop: either valid
// speech followed by enough silence, or the maximum duration reached
func (t *SpeechTracker) ShouldEndRecording() bool {
	if t.config.MaxDuration > 0 && t.state.Elapsed >= t.config.MaxDuration {
		return true
	}
	return t.started &&
		t.state.SilenceDuration >= t.config.SilenceDuration &&
		t.state.SpeechDuration >= t.config.MinSpeechDuration
}

// IsValidSpeech returns true if enough speech has been captured
func (t *SpeechTracker) IsValidSpeech() bool {
	return t.started && t.state.SpeechDuration >= t.config.MinSpeechDuration
}

// Reset clears the tracker for the next recording
func (t *SpeechTracker) Reset() {
	t.state = SpeechState{}
	t.started = false
}

// State returns the current speech state
func (t *SpeechTracker) State() SpeechState {
	return t.state
}
