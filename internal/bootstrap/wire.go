package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tutorvoice/internal/audio"
	"tutorvoice/internal/capability"
	"tutorvoice/internal/config"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/metrics"
	"tutorvoice/internal/ports"
	"tutorvoice/internal/providers/realtime"
	"tutorvoice/internal/rules"
	"tutorvoice/internal/sinks"
	"tutorvoice/internal/sinks/mqtt"
	"tutorvoice/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Metrics    *metrics.Recorder

	closers []func()
}

// Close stops the controller and then the event publishers.
func (s Services) Close() {
	if s.Controller != nil {
		_ = s.Controller.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Build loads configuration and wires all backend dependencies. Events go to
// every sink given, plus MQTT when a broker is configured.
func Build(eventSinks ...ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format, nil)
	return BuildWithConfig(cfg, eventSinks...)
}

// BuildWithConfig wires the runtime graph from an already loaded config.
func BuildWithConfig(cfg config.Config, eventSinks ...ports.EventSink) (Services, error) {
	rulesEngine, err := rules.New(rules.Options{
		Path:           cfg.Rules.Path,
		Inline:         cfg.Rules.Inline,
		IterationLimit: cfg.Rules.IterationLimit,
	})
	if err != nil {
		return Services{}, err
	}

	backend, err := newAudioBackend(cfg.Audio)
	if err != nil {
		return Services{}, err
	}

	services := Services{Config: cfg, Metrics: metrics.NewRecorder("")}

	if cfg.MQTT.Enabled() {
		client := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		publisher := mqtt.NewEventPublisher(client, cfg.MQTT.Topic, 0)
		eventSinks = append(eventSinks, publisher)
		services.closers = append(services.closers, func() {
			publisher.Close()
			client.Close(250 * time.Millisecond)
		})
	}

	prober := capability.NewProber(
		append([]capability.Check{credentialsCheck(cfg.Realtime.APIKey), capability.TransportCheck(cfg.Realtime.URL)},
			backend.checks...)...,
	)

	controller, err := usecase.NewSessionController(
		realtime.NewDialer(realtime.DialerConfig{BetaHeader: cfg.Realtime.BetaHeader}),
		backend.mic,
		backend.speaker,
		prober,
		rulesEngine,
		sinks.NewMulti(eventSinks...),
		usecase.Config{
			Transport: ports.TransportConfig{
				URL:       cfg.Realtime.URL,
				APIKey:    cfg.Realtime.APIKey,
				Model:     cfg.Realtime.Model,
				Heartbeat: cfg.Realtime.Heartbeat,
			},
			Capture: ports.CaptureConfig{
				SampleRate:   cfg.Audio.SampleRate,
				Channels:     1,
				FrameSamples: cfg.Audio.FrameSamples,
				InputFormat:  cfg.Audio.InputFormat,
				InputDevice:  cfg.Audio.InputDevice,
			},
			Playback: ports.PlaybackConfig{
				SampleRate:   cfg.Audio.SampleRate,
				Channels:     1,
				OutputFormat: cfg.Audio.OutputFormat,
				OutputDevice: cfg.Audio.OutputDevice,
			},
			Reconnect: usecase.ReconnectPolicy{
				BaseDelay:   cfg.Session.ReconnectBaseDelay,
				MaxAttempts: cfg.Session.MaxReconnectAttempts,
			},
			Voice:           cfg.Realtime.Voice,
			VoiceTimeout:    cfg.Session.VoiceTimeout,
			SpeechThreshold: cfg.Session.SpeechThreshold,
		},
		usecase.WithMetrics(services.Metrics),
	)
	if err != nil {
		services.Close()
		return Services{}, fmt.Errorf("build session controller: %w", err)
	}
	services.Controller = controller
	return services, nil
}

type audioBackend struct {
	mic     ports.Microphone
	speaker ports.Speaker
	checks  []capability.Check
}

func newAudioBackend(cfg config.AudioConfig) (audioBackend, error) {
	switch cfg.Backend {
	case config.BackendNative:
		return nativeBackend(cfg)
	case config.BackendFFmpeg, "":
		checker := capability.NewBinaryChecker()
		return audioBackend{
			mic:     audio.NewFFMPEGCapture(cfg.FFmpegCommand),
			speaker: audio.NewFFMPEGPlayback(cfg.FFmpegCommand),
			checks: []capability.Check{
				checker.BinaryCheck("microphone", cfg.FFmpegCommand),
				checker.BinaryCheck("playback", cfg.FFmpegCommand),
			},
		}, nil
	default:
		return audioBackend{}, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

var errNoAPIKey = errors.New("no API key configured")

func credentialsCheck(apiKey string) capability.Check {
	return capability.Check{
		Name: "transport",
		Probe: func() error {
			if strings.TrimSpace(apiKey) == "" {
				return errNoAPIKey
			}
			return nil
		},
	}
}
