// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     language
// Description: Language catalog - supported conversation languages
// Author:      Mike Stoffels
// Created:     2026-09-22
// License:     MIT
// ============================================================================

package language

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultLanguageID is the language used before the user picks one.
// It is sent to the plain chat endpoint and never translated.
const DefaultLanguageID = "english"

// ErrUnknownLanguage is returned for ids the catalog does not contain
var ErrUnknownLanguage = errors.New("unknown language")

// UnknownLanguageError carries the id that failed to resolve
type UnknownLanguageError struct {
	ID string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("unknown language %q", e.ID)
}

// Unwrap lets errors.Is match ErrUnknownLanguage
func (e *UnknownLanguageError) Unwrap() error {
	return ErrUnknownLanguage
}

// Language describes one conversation language
type Language struct {
	ID           string `yaml:"id" json:"id"`
	DisplayName  string `yaml:"display_name" json:"displayName"`
	LocaleFamily string `yaml:"locale_family" json:"localeFamily"`
	LocaleTag    string `yaml:"locale_tag" json:"localeTag"`
}

// IsDefault reports whether this is the untranslated default language
func (l Language) IsDefault() bool {
	return l.ID == DefaultLanguageID
}

// builtin is the catalog shipped with the binary, in menu order
var builtin = []Language{
	{ID: "english", DisplayName: "English", LocaleFamily: "en", LocaleTag: "en-IN"},
	{ID: "hindi", DisplayName: "हिंदी", LocaleFamily: "hi", LocaleTag: "hi-IN"},
	{ID: "bengali", DisplayName: "বাংলা", LocaleFamily: "bn", LocaleTag: "bn-IN"},
	{ID: "telugu", DisplayName: "తెలుగు", LocaleFamily: "te", LocaleTag: "te-IN"},
	{ID: "marathi", DisplayName: "मराठी", LocaleFamily: "mr", LocaleTag: "mr-IN"},
	{ID: "tamil", DisplayName: "தமிழ்", LocaleFamily: "ta", LocaleTag: "ta-IN"},
	{ID: "gujarati", DisplayName: "ગુજરાતી", LocaleFamily: "gu", LocaleTag: "gu-IN"},
	{ID: "kannada", DisplayName: "ಕನ್ನಡ", LocaleFamily: "kn", LocaleTag: "kn-IN"},
	{ID: "malayalam", DisplayName: "മലയാളം", LocaleFamily: "ml", LocaleTag: "ml-IN"},
	{ID: "punjabi", DisplayName: "ਪੰਜਾਬੀ", LocaleFamily: "pa", LocaleTag: "pa-IN"},
}

// Catalog is an ordered, read-mostly set of languages
type Catalog struct {
	mu      sync.RWMutex
	entries []Language
	index   map[string]int
}

// Builtin returns a catalog holding the shipped languages
func Builtin() *Catalog {
	c, _ := New(builtin)
	return c
}

// New creates a catalog from entries. Ids must be unique and non-empty,
// and the default language must be present.
func New(entries []Language) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Language, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, l := range entries {
		if err := c.add(l); err != nil {
			return nil, err
		}
	}
	if _, ok := c.index[DefaultLanguageID]; !ok {
		return nil, fmt.Errorf("catalog is missing the default language %q", DefaultLanguageID)
	}
	return c, nil
}

func (c *Catalog) add(l Language) error {
	l.ID = strings.TrimSpace(strings.ToLower(l.ID))
	if l.ID == "" {
		return errors.New("language id must not be empty")
	}
	if _, dup := c.index[l.ID]; dup {
		return fmt.Errorf("duplicate language id %q", l.ID)
	}
	if l.LocaleFamily == "" {
		return fmt.Errorf("language %q has no locale family", l.ID)
	}
	if l.DisplayName == "" {
		l.DisplayName = l.ID
	}
	if l.LocaleTag == "" {
		l.LocaleTag = l.LocaleFamily
	}
	c.index[l.ID] = len(c.entries)
	c.entries = append(c.entries, l)
	return nil
}

// List returns the languages in menu order
func (c *Catalog) List() []Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Language, len(c.entries))
	copy(out, c.entries)
	return out
}

// Resolve looks up a language by id
func (c *Catalog) Resolve(id string) (Language, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Language{}, &UnknownLanguageError{ID: id}
	}
	return c.entries[i], nil
}

// Default returns the default language entry
func (c *Catalog) Default() Language {
	l, _ := c.Resolve(DefaultLanguageID)
	return l
}

// Len returns the number of languages
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MergeRemote applies display names published by the backend.
// Ids the catalog does not know are returned and otherwise ignored;
// no entry is ever removed.
func (c *Catalog) MergeRemote(names map[string]string) (unknown []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, name := range names {
		i, ok := c.index[strings.ToLower(strings.TrimSpace(id))]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			c.entries[i].DisplayName = name
		}
	}
	return unknown
}
