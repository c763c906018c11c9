package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/msto63/krishisaathi/internal/session"
	"github.com/msto63/krishisaathi/internal/voice"
)

func TestParseSayVoices(t *testing.T) {
	out := []byte(`Alex                en_US    # Most people recognize me by my voice.
Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
Lekha               hi_IN    # नमस्कार, मेरा नाम लेखा है।
Rishi               en_IN    # Hello, my name is Rishi.

broken
`)
	want := []voice.Candidate{
		{VoiceID: "Alex", LocaleTag: "en-US"},
		{VoiceID: "Eddy (English (UK))", LocaleTag: "en-GB"},
		{VoiceID: "Lekha", LocaleTag: "hi-IN"},
		{VoiceID: "Rishi", LocaleTag: "en-IN"},
	}

	got := parseSayVoices(out)
	if !slices.Equal(got, want) {
		t.Errorf("parseSayVoices:\n got %v\nwant %v", got, want)
	}
}

func TestSayArgs(t *testing.T) {
	tests := []struct {
		name string
		u    session.Utterance
		want []string
	}{
		{"voice and rate", session.Utterance{Text: "नमस्ते", VoiceID: "Lekha", Rate: 0.8}, []string{"-v", "Lekha", "-r", "160", "--", "नमस्ते"}},
		{"default rate", session.Utterance{Text: "hi", VoiceID: "Rishi"}, []string{"-v", "Rishi", "-r", "160", "--", "hi"}},
		{"no voice", session.Utterance{Text: "-5 degrees", Rate: 1}, []string{"-r", "200", "--", "-5 degrees"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sayArgs(tt.u); !slices.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSilent(t *testing.T) {
	voices, err := Silent{}.Voices(context.Background())
	if err != nil || len(voices) != 0 {
		t.Errorf("Expected no voices, got %v, %v", voices, err)
	}
	if err := (Silent{}).Speak(context.Background(), session.Utterance{Text: "x"}); err != nil {
		t.Errorf("Speak failed: %v", err)
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		opts    Options
		wantErr bool
	}{
		{Options{Engine: "none"}, false},
		{Options{Engine: ""}, false},
		{Options{Engine: "say"}, false},
		{Options{Engine: "piper", ModelsDir: dir}, false},
		{Options{Engine: "piper", ModelsDir: filepath.Join(dir, "missing")}, true},
		{Options{Engine: "espeak"}, true},
	}
	for _, tt := range tests {
		_, err := New(tt.opts)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
		}
	}
}

func TestPiperLocale(t *testing.T) {
	tests := map[string]string{
		"hi_IN-pratham-medium": "hi-IN",
		"en_US-lessac-high":    "en-US",
		"te_IN-venkatesh-low":  "te-IN",
		"ml":                   "ml",
	}
	for id, want := range tests {
		if got := piperLocale(id); got != want {
			t.Errorf("piperLocale(%q) = %q, want %q", id, got, want)
		}
	}
}

type recordingPlayer struct {
	data []byte
	rate float64
}

func (r *recordingPlayer) PlayRaw(_ context.Context, data []byte, rate float64) error {
	r.data = data
	r.rate = rate
	return nil
}

func writeModel(t *testing.T, dir, id, config string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".onnx"), []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}
	if config != "" {
		if err := os.WriteFile(filepath.Join(dir, id+".onnx.json"), []byte(config), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPiper_Voices(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "hi_IN-pratham-medium", `{"audio":{"sample_rate":22050}}`)
	writeModel(t, dir, "en_US-lessac-high", "")
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644)

	p, err := NewPiper(PiperConfig{ModelsDir: dir, Player: &recordingPlayer{}})
	if err != nil {
		t.Fatal(err)
	}

	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	want := []voice.Candidate{
		{VoiceID: "en_US-lessac-high", LocaleTag: "en-US"},
		{VoiceID: "hi_IN-pratham-medium", LocaleTag: "hi-IN"},
	}
	if !slices.Equal(voices, want) {
		t.Errorf("got %v, want %v", voices, want)
	}
}

func TestPiper_Speak(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the piper binary")
	}
	dir := t.TempDir()
	writeModel(t, dir, "hi_IN-pratham-medium", `{"audio":{"sample_rate":16000}}`)

	bin := filepath.Join(t.TempDir(), "piper")
	script := "#!/bin/sh\ncat >/dev/null\nprintf 'PCMDATA'\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	player := &recordingPlayer{}
	p, err := NewPiper(PiperConfig{BinaryPath: bin, ModelsDir: dir, Player: player})
	if err != nil {
		t.Fatal(err)
	}

	err = p.Speak(context.Background(), session.Utterance{Text: "नमस्ते", VoiceID: "hi_IN-pratham-medium", Rate: 0.8})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if string(player.data) != "PCMDATA" {
		t.Errorf("Expected piper output to be played, got %q", player.data)
	}
	if player.rate != 16000 {
		t.Errorf("Expected sample rate from model config, got %v", player.rate)
	}

	err = p.Speak(context.Background(), session.Utterance{Text: "x", VoiceID: "ta_IN-missing"})
	if !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("Expected ErrUnknownVoice, got %v", err)
	}
}

func TestModelSampleRate_Default(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "a", `{"audio":{}}`)
	writeModel(t, dir, "b", "")

	for _, id := range []string{"a", "b"} {
		if got := modelSampleRate(filepath.Join(dir, id+".onnx")); got != piperDefaultSampleRate {
			t.Errorf("%s: expected default rate, got %d", id, got)
		}
	}
}

func TestPiper_VoicesChanged(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "en_IN-a-low", "")

	p, err := NewPiper(PiperConfig{ModelsDir: dir, Player: &recordingPlayer{}})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if v, _ := p.Voices(context.Background()); len(v) != 1 {
		t.Fatalf("Expected 1 voice, got %d", len(v))
	}

	changes := p.VoicesChanged()
	writeModel(t, dir, "hi_IN-b-low", "")

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a change notification")
	}

	if v, _ := p.Voices(context.Background()); len(v) != 2 {
		t.Errorf("Expected 2 voices after rescan, got %d", len(v))
	}
}
