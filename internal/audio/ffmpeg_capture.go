package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/ports"
)

const (
	startupProbeDelay = 250 * time.Millisecond
	stopGrace         = 1200 * time.Millisecond
)

// FFMPEGCapture streams microphone audio as float32 blocks using ffmpeg.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

func (c *FFMPEGCapture) Open(ctx context.Context, cfg ports.CaptureConfig, onBlock func(samples []float32)) (ports.CaptureStream, error) {
	cfg = normalizeCaptureConfig(cfg)

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "f32le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyCaptureFailure(err, stderr.String())
	case <-time.After(startupProbeDelay):
	}

	stream := &ffmpegStream{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
		done:    make(chan struct{}),
	}
	go stream.readLoop(cfg.FrameSamples*cfg.Channels, onBlock)

	logger.Debug("ffmpeg capture started",
		"component", "audio",
		"format", cfg.InputFormat,
		"device", cfg.InputDevice,
		"sample_rate", cfg.SampleRate)
	return stream, nil
}

func normalizeCaptureConfig(cfg ports.CaptureConfig) ports.CaptureConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = domain.Channels
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = domain.FrameSamples
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

// classifyCaptureFailure maps an early ffmpeg exit onto the microphone
// sentinels using the diagnostics it printed.
func classifyCaptureFailure(err error, stderr string) error {
	detail := stringsTrimSpaceSafe(stderr)
	lower := strings.ToLower(detail)

	var sentinel error
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "access denied"):
		sentinel = ports.ErrMicrophoneDenied
	case strings.Contains(lower, "no such device"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "no such entity"),
		strings.Contains(lower, "cannot open"),
		strings.Contains(lower, "could not find"):
		sentinel = ports.ErrMicrophoneNotFound
	}

	if sentinel == nil {
		if err != nil {
			return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
		}
		return errors.New("ffmpeg exited before capture started")
	}
	if detail == "" {
		return fmt.Errorf("ffmpeg exited before capture started: %w", sentinel)
	}
	return fmt.Errorf("ffmpeg exited before capture started: %w: %s", sentinel, detail)
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *syncBuffer

	process *os.Process
	waitErr <-chan error

	done    chan struct{}
	readErr error

	stopOnce sync.Once
	stopErr  error

	mu      sync.Mutex
	stopped bool
}

func (s *ffmpegStream) readLoop(blockSamples int, onBlock func([]float32)) {
	defer close(s.done)

	buf := make([]byte, blockSamples*4)
	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			s.readErr = err
			return
		}
		onBlock(Float32FromLEBytes(buf))
	}
}

func (s *ffmpegStream) Wait() error {
	<-s.done
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil
	}
	if detail := stringsTrimSpaceSafe(s.stderr.String()); detail != "" {
		return fmt.Errorf("ffmpeg capture ended: %w: %s", s.readErr, detail)
	}
	return fmt.Errorf("ffmpeg capture ended: %w", s.readErr)
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}
		<-s.done

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

// syncBuffer guards stderr, which exec writes from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
