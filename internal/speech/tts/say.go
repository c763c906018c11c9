package tts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/internal/voice"
)

// sayBaseWPM is the words-per-minute rate mapped to a relative rate of 1.0
const sayBaseWPM = 200

// Say speaks through the macOS say command
type Say struct {
	binary string

	mu     sync.Mutex
	voices []voice.Candidate
}

// NewSay creates a say-backed synthesis port
func NewSay() *Say {
	return &Say{binary: "say"}
}

// IsAvailable reports whether the say binary is on PATH
func (s *Say) IsAvailable() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Voices lists the installed voices via `say -v ?`. The list is cached
// after the first successful call.
func (s *Say) Voices(ctx context.Context) ([]voice.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voices != nil {
		return s.voices, nil
	}

	out, err := exec.CommandContext(ctx, s.binary, "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list say voices: %w", err)
	}
	s.voices = parseSayVoices(out)
	return s.voices, nil
}

// Speak runs say and blocks until it exits. Cancelling ctx kills the process.
func (s *Say) Speak(ctx context.Context, u session.Utterance) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, sayArgs(u)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("say failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func sayArgs(u session.Utterance) []string {
	var args []string
	if u.VoiceID != "" {
		args = append(args, "-v", u.VoiceID)
	}
	wpm := int(math.Round(sayBaseWPM * rateOrDefault(u.Rate)))
	args = append(args, "-r", strconv.Itoa(wpm), "--", u.Text)
	return args
}

// parseSayVoices reads lines of the form
//
//	Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
//
// Voice names may contain spaces; the locale is the last field before '#'.
func parseSayVoices(out []byte) []voice.Candidate {
	voices := []voice.Candidate{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		locale := fields[len(fields)-1]
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), locale))
		voices = append(voices, voice.Candidate{
			VoiceID:   name,
			LocaleTag: voice.NormalizeTag(locale),
		})
	}
	return voices
}
