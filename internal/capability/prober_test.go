package capability

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorvoice/internal/domain"
)

func TestProberReportsFirstFailingCheck(t *testing.T) {
	t.Parallel()

	var ran []string
	check := func(name string, err error) Check {
		return Check{Name: name, Probe: func() error {
			ran = append(ran, name)
			return err
		}}
	}

	report := NewProber(
		check("transport", nil),
		check("microphone", errors.New("no getUserMedia")),
		check("playback", errors.New("no output")),
	).Probe()

	assert.False(t, report.Supported)
	assert.Equal(t, "microphone unavailable: no getUserMedia", report.Reason)
	assert.Equal(t, []string{"transport", "microphone"}, ran)
}

func TestProberSupported(t *testing.T) {
	t.Parallel()

	report := NewProber(Check{Name: "transport", Probe: func() error { return nil }}).Probe()
	assert.True(t, report.Supported)
	assert.Empty(t, report.Reason)
}

func TestProberRecoversPanics(t *testing.T) {
	t.Parallel()

	report := NewProber(Check{Name: "playback", Probe: func() error { panic("driver exploded") }}).Probe()
	assert.False(t, report.Supported)
	assert.Contains(t, report.Reason, "driver exploded")
}

func TestStaticProber(t *testing.T) {
	t.Parallel()

	assert.True(t, Static(domain.CapabilityReport{Supported: true}).Probe().Supported)

	report := Static(domain.CapabilityReport{Reason: "no getUserMedia"}).Probe()
	assert.False(t, report.Supported)
	assert.Contains(t, report.Reason, "no getUserMedia")
}

func TestTransportCheck(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"wss://api.example.test/v1/realtime": "",
		"http://localhost:8080/voice":        "",
		"":                                   "no realtime endpoint",
		"ftp://example.test":                 "does not support websockets",
		"wss://":                             "no host",
	}
	for endpoint, wantErr := range cases {
		err := TransportCheck(endpoint).Probe()
		if wantErr == "" {
			assert.NoError(t, err, endpoint)
			continue
		}
		require.Error(t, err, endpoint)
		assert.Contains(t, err.Error(), wantErr)
	}
}

func TestBinaryCheckerRequire(t *testing.T) {
	t.Parallel()

	checker := &BinaryChecker{lookPath: func(name string) (string, error) {
		if name == "ffmpeg" {
			return "/usr/bin/ffmpeg", nil
		}
		return "", errors.New("not found")
	}}

	require.NoError(t, checker.Require("ffmpeg"))

	err := checker.BinaryCheck("playback", "ffplay").Probe()
	var missing *MissingBinaryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"ffplay"}, missing.Names)
	assert.True(t, strings.Contains(err.Error(), "ffplay"))
}
