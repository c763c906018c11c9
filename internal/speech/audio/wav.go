package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WriteWAV encodes mono float32 samples as a 16-bit PCM WAV stream
func WriteWAV(w io.Writer, samples []float32, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(samples) * 2)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(header[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(Float32ToPCM16(samples))
	return err
}

// ParseWAV returns the sample rate and the raw data chunk of a WAV file
func ParseWAV(data []byte) (float64, []byte, error) {
	if len(data) < 44 {
		return 0, nil, errors.New("file too small to be a valid WAV")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, nil, errors.New("not a RIFF/WAVE file")
	}

	var (
		sampleRate uint32
		dataStart  int
		dataSize   int
	)
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		switch id {
		case "fmt ":
			if size >= 16 && pos+16 <= len(data) {
				sampleRate = binary.LittleEndian.Uint32(data[pos+12 : pos+16])
			}
		case "data":
			dataStart = pos + 8
			dataSize = size
		}
		pos += 8 + size
		if pos%2 != 0 {
			pos++
		}
	}

	if sampleRate == 0 || dataStart == 0 {
		return 0, nil, fmt.Errorf("missing required WAV chunks")
	}
	if dataStart+dataSize > len(data) {
		dataSize = len(data) - dataStart
	}
	return float64(sampleRate), data[dataStart : dataStart+dataSize], nil
}

// Float32ToPCM16 converts samples to 16-bit little-endian PCM, clamping to [-1, 1]
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = max(-1, min(1, s))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

// PCM16ToFloat32 converts 16-bit little-endian PCM to float32 samples.
// A trailing odd byte is ignored.
func PCM16ToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	return out
}
