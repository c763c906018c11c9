// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     audio
// Description: Microphone capture using PortAudio
// Author:      Mike Stoffels
// Created:     2026-09-28
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// DefaultSampleRate is the capture rate expected by Whisper and the VAD
	DefaultSampleRate = 16000

	// DefaultFramesPerBuffer is 30ms at 16 kHz
	DefaultFramesPerBuffer = 480
)

// ErrCaptureRunning is returned by Start on a running capture
var ErrCaptureRunning = errors.New("capture already running")

// CaptureConfig holds configuration for audio capture
type CaptureConfig struct {
	SampleRate float64
	BufferSize int
	DeviceName string // empty or "default" selects the system default input
}

// DefaultCaptureConfig returns default capture configuration
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate: DefaultSampleRate,
		BufferSize: DefaultFramesPerBuffer,
	}
}

// Capture reads mono float32 frames from an input device.
// A Capture can be started and stopped repeatedly; each Start returns a
// fresh frame channel that is closed when the capture stops.
type Capture struct {
	mu      sync.Mutex
	cfg     CaptureConfig
	stream  *portaudio.Stream
	running bool
	done    chan struct{}
}

// NewCapture initializes PortAudio and returns an idle capture
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Capture{cfg: cfg}, nil
}

// Start opens the input stream and delivers frames until ctx is done or
// Stop is called
func (c *Capture) Start(ctx context.Context) (<-chan []float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil, ErrCaptureRunning
	}

	buffer := make([]float32, c.cfg.BufferSize)
	stream, err := c.openStream(buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	c.stream = stream
	c.running = true
	c.done = make(chan struct{})

	frames := make(chan []float32, 64)
	go c.captureLoop(ctx, stream, buffer, frames, c.done)
	return frames, nil
}

func (c *Capture) openStream(buffer []float32) (*portaudio.Stream, error) {
	if c.cfg.DeviceName != "" && c.cfg.DeviceName != "default" {
		if device, err := findInputDevice(c.cfg.DeviceName); err == nil {
			params := portaudio.StreamParameters{
				Input: portaudio.StreamDeviceParameters{
					Device:   device,
					Channels: 1,
					Latency:  device.DefaultLowInputLatency,
				},
				SampleRate:      c.cfg.SampleRate,
				FramesPerBuffer: c.cfg.BufferSize,
			}
			return portaudio.OpenStream(params, buffer)
		}
	}
	return portaudio.OpenDefaultStream(1, 0, c.cfg.SampleRate, c.cfg.BufferSize, buffer)
}

func (c *Capture) captureLoop(ctx context.Context, stream *portaudio.Stream, buffer []float32, frames chan<- []float32, done <-chan struct{}) {
	defer close(frames)
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			// Overflows are transient; a stopped stream ends the loop.
			if !c.IsRunning() {
				return
			}
			continue
		}

		frame := make([]float32, len(buffer))
		copy(frame, buffer)
		select {
		case frames <- frame:
		default:
			// consumer is behind, drop the frame
		}
	}
}

// Stop closes the input stream
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false
	close(c.done)

	stream := c.stream
	c.stream = nil
	_ = stream.Stop()
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return nil
}

// Close stops the capture and releases PortAudio
func (c *Capture) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// IsRunning returns whether capture is currently running
func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SampleRate returns the capture sample rate
func (c *Capture) SampleRate() float64 {
	return c.cfg.SampleRate
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", name)
}

// DeviceInfo describes an input device
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices returns the available input devices
func ListInputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var inputs []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		inputs = append(inputs, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}
	return inputs, nil
}
