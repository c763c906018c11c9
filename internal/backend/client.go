// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     backend
// Description: HTTP client for the farming assistant backend
// Author:      Mike Stoffels
// Created:     2026-09-24
// License:     MIT
// ============================================================================

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/msto63/krishisaathi/pkg/core/logging"
	"github.com/msto63/krishisaathi/pkg/core/version"
)

// ChatRequest is the body of the plain chat endpoint
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// ChatResponse is the reply of the plain chat endpoint
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// TranslateRequest is the body of the translate-and-chat endpoint
type TranslateRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// TranslateResponse is the reply of the translate-and-chat endpoint.
// Every field is optional.
type TranslateResponse struct {
	TranslatedResponse string `json:"translated_response,omitempty"`
	EnglishResponse    string `json:"english_response,omitempty"`
	OriginalQuestion   string `json:"original_question,omitempty"`
	EnglishQuestion    string `json:"english_question,omitempty"`
	Response           string `json:"response,omitempty"`
}

// ChatAPI is the pair of endpoints the router chooses between
type ChatAPI interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	TranslateChat(ctx context.Context, req TranslateRequest) (*TranslateResponse, error)
}

// ClientConfig holds backend client configuration
type ClientConfig struct {
	BaseURL       string
	ChatPath      string
	TranslatePath string
	LanguagesPath string
	Timeout       time.Duration
	Logger        *logging.Logger
}

// DefaultClientConfig returns the local development backend
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:       "http://127.0.0.1:8000",
		ChatPath:      "/chat",
		TranslatePath: "/api/speech/translate",
		LanguagesPath: "/languages",
		Timeout:       20 * time.Second,
	}
}

// Client talks JSON over HTTP to the backend
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a backend client
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = def.ChatPath
	}
	if cfg.TranslatePath == "" {
		cfg.TranslatePath = def.TranslatePath
	}
	if cfg.LanguagesPath == "" {
		cfg.LanguagesPath = def.LanguagesPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Chat calls the plain English chat endpoint
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.ChatPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TranslateChat calls the translate-and-chat endpoint
func (c *Client) TranslateChat(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	var resp TranslateResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.TranslatePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Languages fetches the backend's language list as id → display name.
// Both {"hindi": "Hindi", ...} and {"languages": [...]} are accepted.
func (c *Client) Languages(ctx context.Context) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.cfg.LanguagesPath, nil, &raw); err != nil {
		return nil, err
	}

	if inner, ok := raw["languages"]; ok {
		var ids []string
		if err := json.Unmarshal(inner, &ids); err == nil {
			out := make(map[string]string, len(ids))
			for _, id := range ids {
				out[id] = ""
			}
			return out, nil
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err != nil {
			return nil, &NetworkError{Op: "decode languages", Err: err}
		}
		raw = nested
	}

	out := make(map[string]string, len(raw))
	for id, v := range raw {
		var name string
		if err := json.Unmarshal(v, &name); err == nil {
			out[id] = name
		}
	}
	return out, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// do performs one JSON round trip bounded by the client timeout
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	op := method + " " + path
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("no response within %s: %w", c.cfg.Timeout, err)
		}
		c.logger.Warn("Backend request failed", "op", op, "request_id", requestID, "error", err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("Backend response", "op", op, "request_id", requestID,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BackendError{Status: resp.StatusCode, Detail: errorDetail(respBody, resp.Status)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// errorDetail extracts a human readable message from an error body.
// FastAPI reports {"detail": "..."}; validation errors carry a list.
func errorDetail(body []byte, status string) string {
	var e struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if len(e.Detail) > 0 {
			var s string
			if json.Unmarshal(e.Detail, &s) == nil && s != "" {
				return s
			}
			return string(e.Detail)
		}
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return text
	}
	return status
}
