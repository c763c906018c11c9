// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     stt
// Description: Speech-to-text over a Whisper HTTP server
// Author:      Mike Stoffels
// Created:     2026-09-29
// License:     MIT
// ============================================================================

package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/msto63/krishisaathi/internal/speech/audio"
	"github.com/msto63/krishisaathi/pkg/core/version"
)

// Transcriber converts recorded audio to text
type Transcriber interface {
	// Transcribe converts mono samples to text. language is a locale
	// family such as "hi"; empty lets the engine detect it.
	Transcribe(ctx context.Context, samples []float32, language string) (Result, error)
}

// Result holds the transcription result
type Result struct {
	Text     string
	Language string
}

// Config configures a WhisperHTTP transcriber
type Config struct {
	// BaseURL of the Whisper server, e.g. http://127.0.0.1:9000
	BaseURL string

	// Model is passed through when the server hosts several models
	Model string

	// SampleRate of the samples handed to Transcribe
	SampleRate int

	// Timeout bounds one transcription request
	Timeout time.Duration
}

// DefaultConfig returns default STT configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://127.0.0.1:9000",
		SampleRate: audio.DefaultSampleRate,
		Timeout:    60 * time.Second,
	}
}

// WhisperHTTP transcribes through an OpenAI-compatible Whisper server
// (whisper.cpp server, faster-whisper-server, LocalAI)
type WhisperHTTP struct {
	cfg    Config
	client *http.Client
}

// NewWhisperHTTP creates a new Whisper HTTP client
func NewWhisperHTTP(cfg Config) *WhisperHTTP {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &WhisperHTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transcribe posts the samples as a WAV body and returns the recognized text
func (w *WhisperHTTP) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	var body bytes.Buffer
	if err := audio.WriteWAV(&body, samples, w.cfg.SampleRate); err != nil {
		return Result{}, fmt.Errorf("failed to encode WAV: %w", err)
	}

	q := url.Values{}
	if language != "" {
		q.Set("language", language)
	}
	if w.cfg.Model != "" {
		q.Set("model", w.cfg.Model)
	}
	endpoint := w.cfg.BaseURL + "/v1/audio/transcriptions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("whisper server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("failed to decode transcription: %w", err)
	}
	if out.Language == "" {
		out.Language = language
	}
	return Result{Text: strings.TrimSpace(out.Text), Language: out.Language}, nil
}
