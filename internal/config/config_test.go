package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var trackedKeys = []string{
	"TUTORVOICE_CONFIG", "TUTORVOICE_API_KEY", "OPENAI_API_KEY", "TUTORVOICE_REALTIME_URL",
	"TUTORVOICE_MODEL", "TUTORVOICE_VOICE", "TUTORVOICE_BETA_HEADER", "TUTORVOICE_HEARTBEAT_MS",
	"TUTORVOICE_AUDIO_BACKEND", "TUTORVOICE_FFMPEG_COMMAND", "TUTORVOICE_AUDIO_INPUT_FORMAT",
	"TUTORVOICE_AUDIO_INPUT_DEVICE", "PULSE_SOURCE", "TUTORVOICE_AUDIO_OUTPUT_FORMAT",
	"TUTORVOICE_AUDIO_OUTPUT_DEVICE", "PULSE_SINK", "TUTORVOICE_SAMPLE_RATE", "TUTORVOICE_FRAME_SAMPLES",
	"TUTORVOICE_RECONNECT_BASE_MS", "TUTORVOICE_MAX_RECONNECT_ATTEMPTS", "TUTORVOICE_VOICE_TIMEOUT_MS",
	"VOICE_TIMEOUT_MS", "TUTORVOICE_SPEECH_THRESHOLD", "TUTORVOICE_RULES_FILE",
	"TUTORVOICE_RULE_ITERATION_LIMIT", "LOG_LEVEL", "TUTORVOICE_LOG_FORMAT", "TUTORVOICE_LISTEN",
	"TUTORVOICE_MQTT_BROKER", "TUTORVOICE_MQTT_TOPIC", "TUTORVOICE_MQTT_CLIENT_ID",
	"TUTORVOICE_MQTT_USERNAME", "TUTORVOICE_MQTT_PASSWORD",
}

// isolate clears every key Load reads and points HOME and the .env file at
// a temp directory. Keys are unset, not blanked, so .env files can fill them.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TUTORVOICE_ENV_FILE", filepath.Join(home, "missing.env"))
	for _, key := range trackedKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unsetenv %s: %v", key, err)
		}
	}
	return home
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Realtime.URL != "wss://api.openai.com/v1/realtime" || cfg.Realtime.Voice != "alloy" {
		t.Fatalf("unexpected realtime defaults: %+v", cfg.Realtime)
	}
	if cfg.Session.ReconnectBaseDelay != time.Second || cfg.Session.MaxReconnectAttempts != 3 {
		t.Fatalf("unexpected reconnect defaults: %+v", cfg.Session)
	}
	if cfg.Audio.Backend != BackendFFmpeg || cfg.Audio.SampleRate != 24000 || cfg.Audio.FrameSamples != 4096 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	wantRules := filepath.Join(home, ".config", "tutorvoice", "substitutions.rules")
	if cfg.Rules.Path != wantRules {
		t.Fatalf("unexpected rules path %q", cfg.Rules.Path)
	}
	if cfg.MQTT.Enabled() {
		t.Fatalf("mqtt should be disabled by default")
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	home := isolate(t)
	rules := filepath.Join(home, "my.rules")
	writeFile(t, rules, "x => y\n")

	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("TUTORVOICE_API_KEY", "sk-primary")
	t.Setenv("TUTORVOICE_REALTIME_URL", "ws://localhost:9000/voice")
	t.Setenv("TUTORVOICE_MODEL", "gpt-realtime")
	t.Setenv("TUTORVOICE_VOICE", "sage")
	t.Setenv("TUTORVOICE_HEARTBEAT_MS", "5000")
	t.Setenv("TUTORVOICE_AUDIO_BACKEND", "NATIVE")
	t.Setenv("TUTORVOICE_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("PULSE_SOURCE", "mic0")
	t.Setenv("TUTORVOICE_SAMPLE_RATE", "16000")
	t.Setenv("TUTORVOICE_RECONNECT_BASE_MS", "250")
	t.Setenv("TUTORVOICE_MAX_RECONNECT_ATTEMPTS", "5")
	t.Setenv("VOICE_TIMEOUT_MS", "0")
	t.Setenv("TUTORVOICE_SPEECH_THRESHOLD", "0.2")
	t.Setenv("TUTORVOICE_RULES_FILE", rules)
	t.Setenv("TUTORVOICE_RULE_ITERATION_LIMIT", "42")
	t.Setenv("TUTORVOICE_MQTT_BROKER", "tcp://localhost:1883")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Realtime.APIKey != "sk-primary" || cfg.Realtime.URL != "ws://localhost:9000/voice" {
		t.Fatalf("unexpected realtime config: %+v", cfg.Realtime)
	}
	if cfg.Realtime.Model != "gpt-realtime" || cfg.Realtime.Voice != "sage" || cfg.Realtime.Heartbeat != 5*time.Second {
		t.Fatalf("unexpected model/voice/heartbeat: %+v", cfg.Realtime)
	}
	if cfg.Audio.Backend != BackendNative || cfg.Audio.FFmpegCommand != "my-ffmpeg" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("unexpected sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Session.ReconnectBaseDelay != 250*time.Millisecond || cfg.Session.MaxReconnectAttempts != 5 {
		t.Fatalf("unexpected reconnect config: %+v", cfg.Session)
	}
	if cfg.Session.VoiceTimeout != 0 || cfg.Session.SpeechThreshold != 0.2 {
		t.Fatalf("unexpected timeout config: %+v", cfg.Session)
	}
	if cfg.Rules.Path != rules || cfg.Rules.IterationLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if !cfg.MQTT.Enabled() || cfg.MQTT.Topic != "tutorvoice/session" {
		t.Fatalf("unexpected mqtt config: %+v", cfg.MQTT)
	}
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "tutorvoice.yaml")
	writeFile(t, path, `
realtime:
  voice: verse
  heartbeat: 15s
session:
  reconnect_base_delay: 500ms
  max_reconnect_attempts: 4
  voice_timeout: 8s
rules:
  inline:
    - "um => "
api:
  listen: 0.0.0.0:9000
`)
	t.Setenv("TUTORVOICE_CONFIG", path)
	t.Setenv("TUTORVOICE_VOICE", "ash")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Realtime.Voice != "ash" {
		t.Fatalf("env should override file, got %q", cfg.Realtime.Voice)
	}
	if cfg.Realtime.Heartbeat != 15*time.Second || cfg.Realtime.Model != "gpt-4o-realtime-preview" {
		t.Fatalf("unexpected realtime config: %+v", cfg.Realtime)
	}
	if cfg.Session.ReconnectBaseDelay != 500*time.Millisecond || cfg.Session.MaxReconnectAttempts != 4 || cfg.Session.VoiceTimeout != 8*time.Second {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if len(cfg.Rules.Inline) != 1 || cfg.Rules.Inline[0] != "um => " {
		t.Fatalf("unexpected inline rules: %v", cfg.Rules.Inline)
	}
	if cfg.API.Listen != "0.0.0.0:9000" {
		t.Fatalf("unexpected listen address %q", cfg.API.Listen)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	home := isolate(t)
	envFile := filepath.Join(home, ".env")
	writeFile(t, envFile, "OPENAI_API_KEY=sk-from-dotenv\nTUTORVOICE_VOICE=coral\n")
	t.Setenv("TUTORVOICE_ENV_FILE", envFile)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Realtime.APIKey != "sk-from-dotenv" || cfg.Realtime.Voice != "coral" {
		t.Fatalf("dotenv values not applied: %+v", cfg.Realtime)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	isolate(t)
	t.Setenv("TUTORVOICE_SAMPLE_RATE", "bad")
	t.Setenv("TUTORVOICE_FRAME_SAMPLES", "5")
	t.Setenv("TUTORVOICE_RULE_ITERATION_LIMIT", "0")
	t.Setenv("TUTORVOICE_RECONNECT_BASE_MS", "bad")
	t.Setenv("TUTORVOICE_VOICE_TIMEOUT_MS", "-5")
	t.Setenv("TUTORVOICE_SPEECH_THRESHOLD", "loud")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSamples != 4096 {
		t.Fatalf("expected frame size fallback, got %d", cfg.Audio.FrameSamples)
	}
	if cfg.Rules.IterationLimit != 30 {
		t.Fatalf("expected default iteration limit, got %d", cfg.Rules.IterationLimit)
	}
	if cfg.Session.ReconnectBaseDelay != time.Second {
		t.Fatalf("expected default base delay, got %s", cfg.Session.ReconnectBaseDelay)
	}
	if cfg.Session.VoiceTimeout != 10*time.Second {
		t.Fatalf("expected default voice timeout, got %s", cfg.Session.VoiceTimeout)
	}
	if cfg.Session.SpeechThreshold != 0.02 {
		t.Fatalf("expected default threshold, got %v", cfg.Session.SpeechThreshold)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string][2]string{
		"attempts":  {"TUTORVOICE_MAX_RECONNECT_ATTEMPTS", "0"},
		"backend":   {"TUTORVOICE_AUDIO_BACKEND", "alsa-direct"},
		"threshold": {"TUTORVOICE_SPEECH_THRESHOLD", "1.5"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoadReportsBadConfigFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "broken.yaml")
	writeFile(t, path, "realtime: [unclosed\n")
	t.Setenv("TUTORVOICE_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("TUTORVOICE_CONFIG", filepath.Join(home, "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected read error")
	}
}
