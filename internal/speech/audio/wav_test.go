package audio

import (
	"bytes"
	"testing"
)

func TestWAV_RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}

	var buf bytes.Buffer
	if err := WriteWAV(&buf, samples, 16000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	if buf.Len() != 44+len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", 44+len(samples)*2, buf.Len())
	}

	rate, pcm, err := ParseWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected rate 16000, got %v", rate)
	}

	got := PCM16ToFloat32(pcm)
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if d := got[i] - samples[i]; d > 0.001 || d < -0.001 {
			t.Errorf("sample %d: expected %v, got %v", i, samples[i], got[i])
		}
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", bytes.Repeat([]byte{'x'}, 64)},
		{"no chunks", append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 40)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseWAV(tt.data); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestFloat32ToPCM16_Clamps(t *testing.T) {
	pcm := Float32ToPCM16([]float32{2, -2})
	got := PCM16ToFloat32(pcm)
	if got[0] < 0.99 || got[1] > -0.99 {
		t.Errorf("Expected clamped samples, got %v", got)
	}
}
