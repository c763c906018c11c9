package vad

import (
	"testing"
	"time"
)

const frame = 30 * time.Millisecond

func feed(t *SpeechTracker, speech bool, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		t.Update(speech, frame)
	}
}

func TestSpeechTracker_EndsAfterSilence(t *testing.T) {
	tr := NewSpeechTracker(Config{
		SilenceDuration:   300 * time.Millisecond,
		MinSpeechDuration: 150 * time.Millisecond,
	})

	feed(tr, false, 600*time.Millisecond)
	if tr.ShouldEndRecording() {
		t.Fatal("Leading silence must not end the recording")
	}

	feed(tr, true, 300*time.Millisecond)
	if !tr.State().IsSpeaking {
		t.Error("Expected IsSpeaking after speech frames")
	}

	feed(tr, false, 150*time.Millisecond)
	if tr.ShouldEndRecording() {
		t.Error("Short pause must not end the recording")
	}

	feed(tr, false, 150*time.Millisecond)
	if !tr.ShouldEndRecording() {
		t.Error("Expected end of recording after silence threshold")
	}
	if !tr.IsValidSpeech() {
		t.Error("Expected valid speech")
	}
}

func TestSpeechTracker_PauseCountsAsSpeech(t *testing.T) {
	tr := NewSpeechTracker(Config{SilenceDuration: time.Second})

	feed(tr, true, 90*time.Millisecond)
	feed(tr, false, 90*time.Millisecond)
	feed(tr, true, 90*time.Millisecond)

	if got := tr.State().SpeechDuration; got != 270*time.Millisecond {
		t.Errorf("Expected 270ms of speech, got %v", got)
	}
}

func TestSpeechTracker_TooShort(t *testing.T) {
	tr := NewSpeechTracker(Config{
		SilenceDuration:   90 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
	})

	feed(tr, true, 60*time.Millisecond)
	feed(tr, false, 300*time.Millisecond)

	if tr.ShouldEndRecording() {
		t.Error("A blip shorter than MinSpeechDuration must not end the recording")
	}
	if tr.IsValidSpeech() {
		t.Error("Expected invalid speech")
	}
}

func TestSpeechTracker_MaxDuration(t *testing.T) {
	tr := NewSpeechTracker(Config{
		SilenceDuration: time.Second,
		MaxDuration:     300 * time.Millisecond,
	})

	feed(tr, false, 300*time.Millisecond)
	if !tr.ShouldEndRecording() {
		t.Error("Expected end of recording at MaxDuration")
	}
	if tr.IsValidSpeech() {
		t.Error("Silence-only recording must not be valid speech")
	}

	tr.Reset()
	if tr.ShouldEndRecording() || tr.State().Elapsed != 0 {
		t.Error("Expected clean state after Reset")
	}
}
