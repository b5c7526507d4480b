//go:build native

package native

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/ports"
)

var log = logger.With("native-audio")

// Microphone opens the default capture device.
type Microphone struct{}

func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Probe checks that an audio backend context can be created.
func (m *Microphone) Probe() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	_ = mctx.Uninit()
	mctx.Free()
	return nil
}

func (m *Microphone) Open(ctx context.Context, cfg ports.CaptureConfig, onBlock func(samples []float32)) (ports.CaptureStream, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	channels := max(cfg.Channels, 1)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	s := &stream{mctx: mctx, done: make(chan struct{})}
	framer := audio.NewFramer(cfg.FrameSamples)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			samples := audio.Float32FromLEBytes(input)
			if channels > 1 {
				samples = downmix(samples, channels)
			}
			framer.Push(samples, onBlock)
		},
		Stop: func() {
			s.finish(nil)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceError(err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceError(err)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()

	log.Debug("capture started", "sample_rate", cfg.SampleRate, "frame_samples", cfg.FrameSamples)
	return s, nil
}

type stream struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device

	once    sync.Once
	stopped sync.Once
	done    chan struct{}
	err     error
}

func (s *stream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *stream) Stop() error {
	s.stopped.Do(func() {
		s.finish(nil)
		s.device.Uninit()
		_ = s.mctx.Uninit()
		s.mctx.Free()
	})
	return nil
}

func (s *stream) Wait() error {
	<-s.done
	return s.err
}

func downmix(samples []float32, channels int) []float32 {
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", ports.ErrMicrophoneDenied, err)
	case strings.Contains(msg, "no device") || strings.Contains(msg, "not available") || strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %v", ports.ErrMicrophoneNotFound, err)
	default:
		return fmt.Errorf("open capture device: %w", err)
	}
}
