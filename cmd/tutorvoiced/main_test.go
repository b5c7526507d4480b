package main

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-l", "127.0.0.1:9000", "--config", "/tmp/tv.yaml", "--log-level", "debug", "--connect"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", opts.listen)
	assert.Equal(t, "/tmp/tv.yaml", opts.configPath)
	assert.Equal(t, "debug", opts.logLevel)
	assert.True(t, opts.connect)
}

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, options{}, opts)
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	_, err := parseFlags([]string{"--bogus"})
	require.Error(t, err)

	_, err = parseFlags([]string{"--help"})
	assert.True(t, errors.Is(err, pflag.ErrHelp))
}
