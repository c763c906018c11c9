// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     voice
// Description: Voice resolution - picks a synthesis voice per language
// Author:      Mike Stoffels
// Created:     2026-09-22
// License:     MIT
// ============================================================================

package voice

import (
	"errors"

	"github.com/msto63/krishisaathi/internal/language"
)

// ErrNoVoiceAvailable is returned when the platform offers no voices at all
var ErrNoVoiceAvailable = errors.New("no synthesis voice available")

// Candidate is one voice offered by the synthesis port
type Candidate struct {
	VoiceID   string `json:"voiceId"`
	LocaleTag string `json:"localeTag"`
}

// fallbacks lists locale tags to try per locale family, most specific first.
// Indian languages without a local voice fall back to Hindi, then Indian English.
var fallbacks = map[string][]string{
	"en": {"en-IN", "en-US", "en-GB"},
	"hi": {"hi-IN", "hi", "en-IN", "en-US"},
	"bn": {"bn-IN", "bn", "hi-IN", "en-IN"},
	"te": {"te-IN", "te", "hi-IN", "en-IN"},
	"ta": {"ta-IN", "ta", "hi-IN", "en-IN"},
	"mr": {"mr-IN", "mr", "hi-IN", "en-IN"},
	"gu": {"gu-IN", "gu", "hi-IN", "en-IN"},
	"kn": {"kn-IN", "kn", "hi-IN", "en-IN"},
	"ml": {"ml-IN", "ml", "hi-IN", "en-IN"},
	"pa": {"pa-IN", "pa", "hi-IN", "en-IN"},
}

// Catalog resolves language ids
type Catalog interface {
	Resolve(id string) (language.Language, error)
}

// Resolver selects voices. It holds no mutable state.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a resolver backed by catalog
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// SelectVoice returns the voice id to use for languageID.
//
// The language's fallback list is walked first, looking for an exact
// locale tag match. Failing that the first voice of the same locale
// family wins, then the first English voice, then simply the first
// voice. ErrNoVoiceAvailable is returned only when available is empty.
func (r *Resolver) SelectVoice(languageID string, available []Candidate) (string, error) {
	c, err := r.SelectCandidate(languageID, available)
	if err != nil {
		return "", err
	}
	return c.VoiceID, nil
}

// SelectCandidate is SelectVoice returning the whole candidate
func (r *Resolver) SelectCandidate(languageID string, available []Candidate) (Candidate, error) {
	lang, err := r.catalog.Resolve(languageID)
	if err != nil {
		return Candidate{}, err
	}
	return Select(lang, available)
}

// Select applies the fallback rules for a resolved language
func Select(lang language.Language, available []Candidate) (Candidate, error) {
	if len(available) == 0 {
		return Candidate{}, ErrNoVoiceAvailable
	}

	for _, tag := range FallbackTags(lang) {
		for _, c := range available {
			if c.LocaleTag == tag {
				return c, nil
			}
		}
	}

	if c, ok := firstInFamily(available, lang.LocaleFamily); ok {
		return c, nil
	}
	if c, ok := firstInFamily(available, "en"); ok {
		return c, nil
	}
	return available[0], nil
}

// FallbackTags returns the ordered locale tags tried for lang
func FallbackTags(lang language.Language) []string {
	if tags, ok := fallbacks[lang.LocaleFamily]; ok {
		out := make([]string, len(tags))
		copy(out, tags)
		return out
	}

	var tags []string
	if lang.LocaleTag != "" && lang.LocaleTag != lang.LocaleFamily {
		tags = append(tags, lang.LocaleTag)
	}
	return append(tags, lang.LocaleFamily, "en-IN", "en-US")
}

func firstInFamily(available []Candidate, family string) (Candidate, bool) {
	for _, c := range available {
		if Family(c.LocaleTag) == family {
			return c, true
		}
	}
	return Candidate{}, false
}
