// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     capture
// Description: Microphone speech capture - record, detect end of speech, transcribe
// Author:      Mike Stoffels
// Created:     2026-09-29
// License:     MIT
// ============================================================================

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msto63/krishisaathi/internal/speech/audio"
	"github.com/msto63/krishisaathi/internal/speech/stt"
	"github.com/msto63/krishisaathi/internal/speech/vad"
	"github.com/msto63/krishisaathi/internal/voice"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// ErrNoSpeech is returned when a recording ends without usable speech
var ErrNoSpeech = errors.New("no speech detected")

// ErrBusy is returned when Listen is called while a recording is running
var ErrBusy = errors.New("microphone already in use")

// preRollFrames keeps audio from just before speech onset so the first
// syllable is not clipped
const preRollFrames = 10

// FrameSource delivers mono float32 frames until stopped
type FrameSource interface {
	Start(ctx context.Context) (<-chan []float32, error)
	Stop() error
	SampleRate() float64
}

// Config configures a Microphone
type Config struct {
	VAD    vad.Config
	Logger *logging.Logger
}

// Microphone records one utterance per Listen call and transcribes it
type Microphone struct {
	source      FrameSource
	detector    vad.Detector
	transcriber stt.Transcriber
	cfg         Config
	logger      *logging.Logger

	mu   sync.Mutex
	busy bool
}

// NewMicrophone wires a frame source, detector and transcriber
func NewMicrophone(source FrameSource, detector vad.Detector, transcriber stt.Transcriber, cfg Config) *Microphone {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Microphone{
		source:      source,
		detector:    detector,
		transcriber: transcriber,
		cfg:         cfg,
		logger:      logger.Named("microphone"),
	}
}

// Listen records until end of speech and returns the transcript.
// localeTag selects the recognition language by its family.
func (m *Microphone) Listen(ctx context.Context, localeTag string) (string, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.busy = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	samples, err := m.record(ctx)
	if err != nil {
		return "", err
	}

	family := voice.Family(localeTag)
	m.logger.Debug("Transcribing", "samples", len(samples), "language", family)

	res, err := m.transcriber.Transcribe(ctx, samples, family)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return res.Text, nil
}

func (m *Microphone) record(ctx context.Context) ([]float32, error) {
	recCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := m.source.Start(recCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}
	defer m.source.Stop()

	rate := m.source.SampleRate()
	tracker := vad.NewSpeechTracker(m.cfg.VAD)

	var (
		recorded [][]float32
		preRoll  [][]float32
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return finish(tracker, recorded)
			}

			speech, err := m.detector.Process(frame)
			if err != nil {
				return nil, err
			}
			wasStarted := tracker.State().SpeechDuration > 0
			state := tracker.Update(speech, frameDuration(len(frame), rate))

			switch {
			case wasStarted || state.SpeechDuration > 0:
				if !wasStarted {
					recorded = append(recorded, preRoll...)
					preRoll = nil
				}
				recorded = append(recorded, frame)
			default:
				preRoll = append(preRoll, frame)
				if len(preRoll) > preRollFrames {
					preRoll = preRoll[1:]
				}
			}

			if tracker.ShouldEndRecording() {
				return finish(tracker, recorded)
			}
		}
	}
}

func finish(tracker *vad.SpeechTracker, recorded [][]float32) ([]float32, error) {
	if !tracker.IsValidSpeech() {
		return nil, ErrNoSpeech
	}
	var n int
	for _, f := range recorded {
		n += len(f)
	}
	out := make([]float32, 0, n)
	for _, f := range recorded {
		out = append(out, f...)
	}
	return out, nil
}

func frameDuration(samples int, rate float64) time.Duration {
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return time.Duration(float64(samples) / rate * float64(time.Second))
}
