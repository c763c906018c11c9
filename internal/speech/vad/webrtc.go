package vad

import (
	"fmt"
	"slices"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/msto63/krishisaathi/internal/speech/audio"
)

var validRates = []int{8000, 16000, 32000, 48000}

// WebRTCVAD implements Detector with the WebRTC voice activity detector
type WebRTCVAD struct {
	vad        *webrtcvad.VAD
	sampleRate int
	mode       int
}

// NewWebRTCVAD creates a new WebRTC VAD instance
func NewWebRTCVAD(cfg Config) (*WebRTCVAD, error) {
	if !slices.Contains(validRates, cfg.SampleRate) {
		return nil, fmt.Errorf("invalid sample rate %d, must be one of %v", cfg.SampleRate, validRates)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}

	mode := max(0, min(3, cfg.Mode))
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}

	return &WebRTCVAD{vad: v, sampleRate: cfg.SampleRate, mode: mode}, nil
}

// Process reports whether any 10ms frame in samples contains speech.
// Short input is zero-padded to one frame.
func (w *WebRTCVAD) Process(samples []float32) (bool, error) {
	frameSize := w.sampleRate / 100

	if len(samples) < frameSize {
		padded := make([]float32, frameSize)
		copy(padded, samples)
		samples = padded
	}

	pcm := audio.Float32ToPCM16(samples)
	for i := 0; i+frameSize <= len(samples); i += frameSize {
		active, err := w.vad.Process(w.sampleRate, pcm[i*2:(i+frameSize)*2])
		if err != nil {
			return false, fmt.Errorf("VAD processing failed: %w", err)
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op; the detector holds no external resources
func (w *WebRTCVAD) Close() error {
	return nil
}

// Mode returns the aggressiveness mode
func (w *WebRTCVAD) Mode() int {
	return w.mode
}
