//go:build native

package bootstrap

import (
	"tutorvoice/internal/audio/native"
	"tutorvoice/internal/capability"
	"tutorvoice/internal/config"
	"tutorvoice/internal/ports"
)

func nativeBackend(cfg config.AudioConfig) (audioBackend, error) {
	mic := native.NewMicrophone()
	speaker := native.NewSpeaker()
	return audioBackend{
		mic:     mic,
		speaker: speaker,
		checks: []capability.Check{
			{Name: "microphone", Probe: mic.Probe},
			{Name: "playback", Probe: func() error {
				return speaker.Probe(ports.PlaybackConfig{SampleRate: cfg.SampleRate, Channels: 1})
			}},
		},
	}, nil
}
