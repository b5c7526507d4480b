package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
)

const (
	pcmNegativeScale = 32768.0
	pcmPositiveScale = 32767.0

	// LevelScale maps block RMS onto the [0, 1] metering range.
	LevelScale = 5.0
)

var (
	ErrInvalidBase64 = errors.New("invalid base64 audio payload")
	ErrOddByteCount  = errors.New("pcm16 payload has odd byte count")
)

// Float32ToPCM16 converts samples in [-1, 1] to signed 16-bit PCM. Out of
// range input is clamped.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := lo.Clamp(float64(s), -1, 1)
		if math.IsNaN(v) {
			v = 0
		}
		if v < 0 {
			out[i] = int16(math.Round(v * pcmNegativeScale))
		} else {
			out[i] = int16(math.Round(v * pcmPositiveScale))
		}
	}
	return out
}

// PCM16ToFloat32 is the inverse of Float32ToPCM16.
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		if v < 0 {
			out[i] = float32(float64(v) / pcmNegativeScale)
		} else {
			out[i] = float32(float64(v) / pcmPositiveScale)
		}
	}
	return out
}

// Level returns the loudness of a block as RMS scaled and clamped to [0, 1].
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return lo.Clamp(rms*LevelScale, 0, 1)
}

// EncodePCM16 serializes samples as little-endian bytes and base64-encodes them.
func EncodePCM16(samples []int16) string {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePCM16 parses a base64 little-endian PCM16 payload.
func DecodePCM16(payload string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if len(raw)%2 != 0 {
		return nil, ErrOddByteCount
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out, nil
}

// Float32LEBytes serializes samples as little-endian IEEE-754 bytes.
func Float32LEBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// Float32FromLEBytes parses little-endian IEEE-754 samples. Trailing bytes
// that do not form a full sample are ignored.
func Float32FromLEBytes(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
