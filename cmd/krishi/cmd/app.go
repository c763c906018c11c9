// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     cmd
// Description: Wiring of catalog, history, backend, speech ports and session
// Author:      Mike Stoffels
// Created:     2026-10-06
// License:     MIT
// ============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msto63/krishisaathi/internal/backend"
	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/language"
	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/internal/speech/audio"
	"github.com/msto63/krishisaathi/internal/speech/capture"
	"github.com/msto63/krishisaathi/internal/speech/stt"
	"github.com/msto63/krishisaathi/internal/speech/tts"
	"github.com/msto63/krishisaathi/internal/speech/vad"
	"github.com/msto63/krishisaathi/pkg/core/config"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

// appOptions are per-command overrides of the config file
type appOptions struct {
	language string
	noVoice  bool
	noMic    bool
}

// app holds everything a command needs and closes it in reverse order
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	client  *backend.Client
	catalog *language.Catalog
	store   *history.Store
	synth   session.SpeechSynthesisPort
	ctrl    *session.Controller

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Sync()
	return errors.Join(errs...)
}

func newBackendClient(cfg *config.Config, logger *logging.Logger) *backend.Client {
	return backend.NewClient(backend.ClientConfig{
		BaseURL:       cfg.Backend.BaseURL,
		ChatPath:      cfg.Backend.ChatPath,
		TranslatePath: cfg.Backend.TranslatePath,
		LanguagesPath: cfg.Backend.LanguagesPath,
		Timeout:       cfg.Backend.Timeout.Duration,
		Logger:        logger,
	})
}

func loadCatalog(ctx context.Context, cfg *config.Config, client *backend.Client, logger *logging.Logger) *language.Catalog {
	opts := language.Options{
		File:   cfg.Catalog.File,
		Logger: logger,
	}
	if cfg.Backend.FetchLanguages && client != nil {
		opts.Fetcher = client
	}
	return language.Load(ctx, opts)
}

func openHistory(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*history.Store, error) {
	p, err := history.OpenPersister(cfg.History.Driver, cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return history.Open(ctx, p, history.Options{
		ConversationID: cfg.History.ConversationID,
		Logger:         logger,
	}), nil
}

// newSynthesis returns the configured synthesis port, falling back to
// text-only output when the engine cannot be used on this machine
func newSynthesis(cfg *config.Config, noVoice bool, logger *logging.Logger) session.SpeechSynthesisPort {
	if noVoice {
		return tts.Silent{}
	}
	if cfg.Synthesis.Engine == "say" && !tts.NewSay().IsAvailable() {
		logger.Warn("say not found, replies will not be spoken")
		return tts.Silent{}
	}
	synth, err := tts.New(tts.Options{
		Engine:    cfg.Synthesis.Engine,
		Rate:      cfg.Synthesis.Rate,
		PiperBin:  cfg.Synthesis.PiperBinary,
		ModelsDir: cfg.Synthesis.PiperModelsDir,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("Speech synthesis unavailable", "engine", cfg.Synthesis.Engine, "error", err)
		return tts.Silent{}
	}
	return synth
}

// newMicrophone assembles PortAudio capture, WebRTC VAD and Whisper
func newMicrophone(cfg *config.Config, logger *logging.Logger) (*capture.Microphone, *audio.Capture, error) {
	vadCfg := vad.Config{
		SampleRate:        cfg.Capture.SampleRate,
		Mode:              cfg.Capture.VADMode,
		SilenceDuration:   cfg.Capture.SilenceDuration.Duration,
		MinSpeechDuration: cfg.Capture.MinSpeechDuration.Duration,
		MaxDuration:       cfg.Capture.MaxDuration.Duration,
	}
	detector, err := vad.NewWebRTCVAD(vadCfg)
	if err != nil {
		return nil, nil, err
	}

	src, err := audio.NewCapture(audio.CaptureConfig{
		SampleRate: float64(cfg.Capture.SampleRate),
		BufferSize: cfg.Capture.SampleRate * 30 / 1000,
		DeviceName: cfg.Capture.Device,
	})
	if err != nil {
		return nil, nil, err
	}

	whisper := stt.NewWhisperHTTP(stt.Config{
		BaseURL:    cfg.Capture.WhisperURL,
		Model:      cfg.Capture.WhisperModel,
		SampleRate: cfg.Capture.SampleRate,
	})

	mic := capture.NewMicrophone(src, detector, whisper, capture.Config{VAD: vadCfg, Logger: logger})
	return mic, src, nil
}

// newApp wires a complete session from cfg
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger := logging.New("krishi")
	a := &app{cfg: cfg, logger: logger}

	a.client = newBackendClient(cfg, logger)

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	a.catalog = loadCatalog(fetchCtx, cfg, a.client, logger)
	cancel()

	store, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.synth = newSynthesis(cfg, opts.noVoice, logger)
	if c, ok := a.synth.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	deps := session.Deps{
		Catalog:   a.catalog,
		History:   store,
		Router:    backend.NewRouter(a.client, logger),
		Synthesis: a.synth,
	}
	if !opts.noMic && cfg.Capture.Engine == "portaudio" {
		mic, src, err := newMicrophone(cfg, logger)
		if err != nil {
			logger.Warn("Microphone unavailable, typed input only", "error", err)
		} else {
			deps.Capture = mic
			a.closers = append(a.closers, src.Close)
		}
	}

	langID := opts.language
	if langID == "" {
		langID = cfg.Catalog.DefaultLanguage
	}
	ctrl, err := session.New(deps, session.Options{
		UserID:       cfg.General.UserID,
		Language:     langID,
		RouteTimeout: cfg.Backend.Timeout.Duration,
		SpeakErrors:  cfg.Synthesis.SpeakErrors,
		Rate:         cfg.Synthesis.Rate,
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ctrl = ctrl
	a.closers = append(a.closers, ctrl.Close)
	return a, nil
}
