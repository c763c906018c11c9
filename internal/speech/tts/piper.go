package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/internal/speech/audio"
	"github.com/msto63/krishisaathi/internal/voice"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

const piperDefaultSampleRate = 22050

// Player plays raw 16-bit PCM
type Player interface {
	PlayRaw(ctx context.Context, data []byte, sampleRate float64) error
}

// PiperConfig configures the Piper port
type PiperConfig struct {
	// BinaryPath of the piper executable (default: piper on PATH)
	BinaryPath string

	// ModelsDir holds <locale>-<name>-<quality>.onnx models with their .onnx.json configs
	ModelsDir string

	// Player plays synthesized audio (default: audio.Playback)
	Player Player

	Logger *logging.Logger
}

// Piper synthesizes with Piper neural voices and plays the result.
// The models directory is watched; adding or removing a model refreshes
// the voice list.
type Piper struct {
	cfg    PiperConfig
	logger *logging.Logger

	mu      sync.Mutex
	models  map[string]string // voice id -> model path
	voices  []voice.Candidate
	loaded  bool
	watcher *fsnotify.Watcher
	changed chan struct{}
}

// NewPiper creates a Piper port. The binary is resolved on first use.
func NewPiper(cfg PiperConfig) (*Piper, error) {
	if cfg.ModelsDir == "" {
		return nil, errors.New("piper models directory is required")
	}
	if info, err := os.Stat(cfg.ModelsDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("piper models directory not found: %s", cfg.ModelsDir)
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "piper"
	}
	if cfg.Player == nil {
		cfg.Player = audio.NewPlayback()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Piper{
		cfg:     cfg,
		logger:  logger.Named("piper"),
		changed: make(chan struct{}, 1),
	}, nil
}

// Voices lists the models in the models directory
func (p *Piper) Voices(context.Context) ([]voice.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.scanLocked(); err != nil {
		return nil, err
	}
	return slices.Clone(p.voices), nil
}

func (p *Piper) scanLocked() error {
	if p.loaded {
		return nil
	}
	entries, err := os.ReadDir(p.cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("failed to read piper models: %w", err)
	}

	p.models = make(map[string]string)
	p.voices = []voice.Candidate{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".onnx") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".onnx")
		p.models[id] = filepath.Join(p.cfg.ModelsDir, entry.Name())
		p.voices = append(p.voices, voice.Candidate{VoiceID: id, LocaleTag: piperLocale(id)})
	}
	p.loaded = true
	return nil
}

// piperLocale extracts the locale from a model id: hi_IN-pratham-medium -> hi-IN
func piperLocale(id string) string {
	locale, _, _ := strings.Cut(id, "-")
	return voice.NormalizeTag(locale)
}

// Speak synthesizes u.Text with the model named by u.VoiceID and plays it
func (p *Piper) Speak(ctx context.Context, u session.Utterance) error {
	p.mu.Lock()
	err := p.scanLocked()
	model, ok := p.models[u.VoiceID]
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, u.VoiceID)
	}

	pcm, err := p.synthesize(ctx, model, u)
	if err != nil {
		return err
	}
	return p.cfg.Player.PlayRaw(ctx, pcm, float64(modelSampleRate(model)))
}

func (p *Piper) synthesize(ctx context.Context, model string, u session.Utterance) ([]byte, error) {
	// Piper's length scale is inverse to speaking rate
	lengthScale := 1 / rateOrDefault(u.Rate)

	args := []string{
		"--model", model,
		"--output_raw",
		"--length_scale", fmt.Sprintf("%.2f", lengthScale),
	}
	if cfg := model + ".json"; fileExists(cfg) {
		args = append(args, "--config", cfg)
	}
	if dir := filepath.Dir(p.cfg.BinaryPath); dir != "." {
		if data := filepath.Join(dir, "espeak-ng-data"); fileExists(data) {
			args = append(args, "--espeak_data", data)
		}
	}

	cmd := exec.CommandContext(ctx, p.cfg.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(u.Text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// modelSampleRate reads audio.sample_rate from the model's JSON config
func modelSampleRate(model string) int {
	data, err := os.ReadFile(model + ".json")
	if err != nil {
		return piperDefaultSampleRate
	}
	var cfg struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if json.Unmarshal(data, &cfg) != nil || cfg.Audio.SampleRate <= 0 {
		return piperDefaultSampleRate
	}
	return cfg.Audio.SampleRate
}

// VoicesChanged starts watching the models directory on first call and
// signals whenever a model is added, removed or renamed
func (p *Piper) VoicesChanged() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		return p.changed
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("Voice watcher unavailable", "error", err)
		return p.changed
	}
	if err := watcher.Add(p.cfg.ModelsDir); err != nil {
		watcher.Close()
		p.logger.Warn("Voice watcher unavailable", "dir", p.cfg.ModelsDir, "error", err)
		return p.changed
	}
	p.watcher = watcher
	go p.watch(watcher)
	return p.changed
}

func (p *Piper) watch(w *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".onnx") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			p.logger.Debug("Voice models changed", "file", filepath.Base(event.Name), "op", event.Op.String())

			p.mu.Lock()
			p.loaded = false
			p.mu.Unlock()

			select {
			case p.changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.logger.Error("Voice watcher error", "error", err)
		}
	}
}

// Close stops the directory watcher
func (p *Piper) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
