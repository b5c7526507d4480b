package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/ports"
)

var ErrPlaybackClosed = errors.New("playback sink is closed")

// FFMPEGPlayback renders float32 audio through ffmpeg's output devices.
type FFMPEGPlayback struct {
	command string
}

func NewFFMPEGPlayback(command string) *FFMPEGPlayback {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGPlayback{command: command}
}

func (p *FFMPEGPlayback) Open(ctx context.Context, cfg ports.PlaybackConfig) (ports.PlaybackSink, error) {
	cfg = normalizePlaybackConfig(cfg)

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "f32le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-i", "pipe:0",
		"-f", cfg.OutputFormat,
		cfg.OutputDevice,
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg playback: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	logger.Debug("ffmpeg playback started",
		"component", "audio",
		"format", cfg.OutputFormat,
		"device", cfg.OutputDevice)

	return &ffmpegSink{stdin: stdin, cmd: cmd, stderr: stderr, waitErr: waitErr}, nil
}

// normalizePlaybackConfig picks the platform's default ffmpeg output device.
func normalizePlaybackConfig(cfg ports.PlaybackConfig) ports.PlaybackConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = domain.Channels
	}
	if cfg.OutputFormat == "" {
		switch runtime.GOOS {
		case "darwin":
			cfg.OutputFormat = "audiotoolbox"
		default:
			cfg.OutputFormat = "pulse"
		}
	}
	if cfg.OutputDevice == "" {
		cfg.OutputDevice = "default"
	}
	return cfg
}

// ffmpegSink is written by a single playback goroutine; Close may run
// concurrently and unblocks a pending Write by closing stdin.
type ffmpegSink struct {
	stdin  io.WriteCloser
	closed atomic.Bool

	cmd     *exec.Cmd
	stderr  *syncBuffer
	waitErr <-chan error

	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegSink) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	if s.closed.Load() {
		return ErrPlaybackClosed
	}
	if _, err := s.stdin.Write(Float32LEBytes(samples)); err != nil {
		if s.closed.Load() {
			return ErrPlaybackClosed
		}
		return fmt.Errorf("failed to write playback audio: %w: %s", err, stringsTrimSpaceSafe(s.stderr.String()))
	}
	return nil
}

func (s *ffmpegSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.stdin.Close()

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.closeErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.closeErr = normalizeStopErr(err)
			}
		}
	})
	return s.closeErr
}
