package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "KRISHI_CONFIG"

// Config holds the complete application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Backend   BackendConfig   `toml:"backend"`
	History   HistoryConfig   `toml:"history"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Capture   CaptureConfig   `toml:"capture"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Bridge    BridgeConfig    `toml:"bridge"`
}

// GeneralConfig holds general application settings
type GeneralConfig struct {
	Name      string `toml:"name"`
	DataDir   string `toml:"data_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	UserID    string `toml:"user_id"`
}

// BackendConfig holds the conversational backend endpoints
type BackendConfig struct {
	BaseURL        string   `toml:"base_url"`
	ChatPath       string   `toml:"chat_path"`
	TranslatePath  string   `toml:"translate_path"`
	LanguagesPath  string   `toml:"languages_path"`
	Timeout        Duration `toml:"timeout"`
	FetchLanguages bool     `toml:"fetch_languages"`
}

// HistoryConfig holds conversation persistence settings
type HistoryConfig struct {
	Driver         string `toml:"driver"` // sqlite, file or memory
	Path           string `toml:"path"`
	ConversationID string `toml:"conversation_id"`
}

// CatalogConfig holds language catalog settings
type CatalogConfig struct {
	File            string `toml:"file"`
	DefaultLanguage string `toml:"default_language"`
}

// CaptureConfig holds microphone and speech recognition settings
type CaptureConfig struct {
	Engine            string   `toml:"engine"` // portaudio or none
	Device            string   `toml:"device"`
	SampleRate        int      `toml:"sample_rate"`
	VADMode           int      `toml:"vad_mode"`
	SilenceDuration   Duration `toml:"silence_duration"`
	MinSpeechDuration Duration `toml:"min_speech_duration"`
	MaxDuration       Duration `toml:"max_duration"`
	WhisperURL        string   `toml:"whisper_url"`
	WhisperModel      string   `toml:"whisper_model"`
}

// SynthesisConfig holds text-to-speech settings
type SynthesisConfig struct {
	Engine         string  `toml:"engine"` // say, piper or none
	Rate           float64 `toml:"rate"`   // relative speaking rate, 1.0 = normal
	PiperBinary    string  `toml:"piper_binary"`
	PiperModelsDir string  `toml:"piper_models_dir"`
	SpeakErrors    bool    `toml:"speak_errors"`
}

// BridgeConfig holds the WebSocket UI bridge settings
type BridgeConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Backend.FetchLanguages = true
	cfg.applyDefaults()
	cfg.expandEnvVars()
	return cfg
}

// Load loads configuration from a TOML file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg := &Config{}
	cfg.Backend.FetchLanguages = true
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from KRISHI_CONFIG or the default
// locations. Without any config file the defaults are returned.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}
	for _, p := range DefaultPaths() {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}

// DefaultPaths lists the locations searched by LoadFromEnv
func DefaultPaths() []string {
	paths := []string{
		"./configs/krishi.toml",
		"./krishi.toml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "krishisaathi", "krishi.toml"))
	}
	return paths
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// General
	if c.General.Name == "" {
		c.General.Name = "KrishiSaathi"
	}
	if c.General.DataDir == "" {
		c.General.DataDir = defaultDataDir()
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.LogFormat == "" {
		c.General.LogFormat = "text"
	}
	if c.General.UserID == "" {
		c.General.UserID = "anonymous"
	}

	// Backend
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Backend.ChatPath == "" {
		c.Backend.ChatPath = "/chat"
	}
	if c.Backend.TranslatePath == "" {
		c.Backend.TranslatePath = "/api/speech/translate"
	}
	if c.Backend.LanguagesPath == "" {
		c.Backend.LanguagesPath = "/languages"
	}
	if c.Backend.Timeout.Duration == 0 {
		c.Backend.Timeout.Duration = 20 * time.Second
	}

	// History
	if c.History.Driver == "" {
		c.History.Driver = "sqlite"
	}
	if c.History.ConversationID == "" {
		c.History.ConversationID = "krishisaathi_chat_messages"
	}
	if c.History.Path == "" {
		switch c.History.Driver {
		case "file":
			c.History.Path = filepath.Join(c.General.DataDir, "history")
		default:
			c.History.Path = filepath.Join(c.General.DataDir, "history.db")
		}
	}

	// Catalog
	if c.Catalog.DefaultLanguage == "" {
		c.Catalog.DefaultLanguage = "english"
	}

	// Capture
	if c.Capture.Engine == "" {
		c.Capture.Engine = "portaudio"
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.VADMode == 0 {
		c.Capture.VADMode = 2
	}
	if c.Capture.SilenceDuration.Duration == 0 {
		c.Capture.SilenceDuration.Duration = 1500 * time.Millisecond
	}
	if c.Capture.MinSpeechDuration.Duration == 0 {
		c.Capture.MinSpeechDuration.Duration = 300 * time.Millisecond
	}
	if c.Capture.MaxDuration.Duration == 0 {
		c.Capture.MaxDuration.Duration = 30 * time.Second
	}
	if c.Capture.WhisperURL == "" {
		c.Capture.WhisperURL = "http://127.0.0.1:9000"
	}

	// Synthesis
	if c.Synthesis.Engine == "" {
		c.Synthesis.Engine = "say"
	}
	if c.Synthesis.Rate == 0 {
		c.Synthesis.Rate = 0.8
	}
	if c.Synthesis.PiperBinary == "" {
		c.Synthesis.PiperBinary = "piper"
	}
	if c.Synthesis.PiperModelsDir == "" {
		c.Synthesis.PiperModelsDir = filepath.Join(c.General.DataDir, "piper")
	}

	// Bridge
	if c.Bridge.Listen == "" {
		c.Bridge.Listen = "127.0.0.1:8765"
	}
}

// expandEnvVars expands environment variables in configuration values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.Backend.BaseURL = os.ExpandEnv(c.Backend.BaseURL)
	c.History.Path = os.ExpandEnv(c.History.Path)
	c.Catalog.File = os.ExpandEnv(c.Catalog.File)
	c.Synthesis.PiperModelsDir = os.ExpandEnv(c.Synthesis.PiperModelsDir)
}

// Validate checks enumerated values and ranges
func (c *Config) Validate() error {
	var problems []string

	switch c.History.Driver {
	case "sqlite", "file", "memory":
	default:
		problems = append(problems, fmt.Sprintf("history.driver %q (want sqlite, file or memory)", c.History.Driver))
	}
	switch c.Capture.Engine {
	case "portaudio", "none":
	default:
		problems = append(problems, fmt.Sprintf("capture.engine %q (want portaudio or none)", c.Capture.Engine))
	}
	switch c.Synthesis.Engine {
	case "say", "piper", "none":
	default:
		problems = append(problems, fmt.Sprintf("synthesis.engine %q (want say, piper or none)", c.Synthesis.Engine))
	}
	if c.Backend.Timeout.Duration < 0 {
		problems = append(problems, "backend.timeout must be positive")
	}
	if c.Capture.VADMode < 0 || c.Capture.VADMode > 3 {
		problems = append(problems, fmt.Sprintf("capture.vad_mode %d (want 0-3)", c.Capture.VADMode))
	}
	if c.Synthesis.Rate < 0.1 || c.Synthesis.Rate > 3 {
		problems = append(problems, fmt.Sprintf("synthesis.rate %.2f (want 0.1-3.0)", c.Synthesis.Rate))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BackendURL joins the backend base URL and an endpoint path
func (c *Config) BackendURL(path string) string {
	return strings.TrimRight(c.Backend.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "krishisaathi")
}
