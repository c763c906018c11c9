// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     history
// Description: Conversation history - append-only message log
// Author:      Mike Stoffels
// Created:     2026-09-23
// License:     MIT
// ============================================================================

package history

import (
	"fmt"
	"time"
)

// DefaultGreeting seeds every new or reset conversation
const DefaultGreeting = "Hello! I'm KrishiSaathi, your AI farming assistant. " +
	"Ask me about soil management, crop recommendations, fertilizers, " +
	"organic farming, or any agricultural questions!"

// Sender identifies who wrote a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is a known sender
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Message is one immutable entry of the conversation
type Message struct {
	ID             int64     `json:"id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	OriginalText   string    `json:"originalText,omitempty"`
	SourceLanguage string    `json:"sourceLanguage,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}

// IsTranslated reports whether the message keeps an untranslated original
func (m Message) IsTranslated() bool {
	return m.OriginalText != "" && m.OriginalText != m.Text
}

func (m Message) validate() error {
	if !m.Sender.Valid() {
		return fmt.Errorf("message %d: invalid sender %q", m.ID, m.Sender)
	}
	if m.ID <= 0 {
		return fmt.Errorf("message has invalid id %d", m.ID)
	}
	return nil
}
