//go:build !native

package bootstrap

import (
	"errors"

	"tutorvoice/internal/config"
)

var errNativeUnavailable = errors.New("native audio backend not compiled in; rebuild with -tags native")

func nativeBackend(config.AudioConfig) (audioBackend, error) {
	return audioBackend{}, errNativeUnavailable
}
