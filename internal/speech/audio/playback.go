// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     audio
// Description: Audio playback using PortAudio
// Author:      Mike Stoffels
// Created:     2026-09-28
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrAlreadyPlaying is returned when a second clip is started on a busy Playback
var ErrAlreadyPlaying = errors.New("already playing")

const playbackBufferSize = 1024

// Playback plays mono PCM on the default output device
type Playback struct {
	mu      sync.Mutex
	playing bool
}

// NewPlayback creates a new audio playback instance
func NewPlayback() *Playback {
	return &Playback{}
}

// PlayRaw plays 16-bit little-endian PCM. Cancelling ctx stops playback
// after the buffer currently being written.
func (p *Playback) PlayRaw(ctx context.Context, data []byte, sampleRate float64) error {
	return p.PlayFloat32(ctx, PCM16ToFloat32(data), sampleRate)
}

// PlayFloat32 plays float32 samples in [-1, 1]
func (p *Playback) PlayFloat32(ctx context.Context, samples []float32, sampleRate float64) error {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return ErrAlreadyPlaying
	}
	p.playing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]float32, playbackBufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, len(buffer), &buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(samples); pos += len(buffer) {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}
		n := copy(buffer, samples[pos:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}
	return nil
}

// PlayFile plays a 16-bit PCM WAV file
func (p *Playback) PlayFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	sampleRate, pcm, err := ParseWAV(data)
	if err != nil {
		return fmt.Errorf("failed to parse WAV: %w", err)
	}
	return p.PlayRaw(ctx, pcm, sampleRate)
}

// IsPlaying returns whether audio is currently playing
func (p *Playback) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
