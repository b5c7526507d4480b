package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFFmpeg = "ffmpeg"
	BackendNative = "native"
)

// Config stores runtime configuration for the voice client.
type Config struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Audio    AudioConfig    `yaml:"audio"`
	Session  SessionConfig  `yaml:"session"`
	Rules    RulesConfig    `yaml:"rules"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type RealtimeConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Voice      string        `yaml:"voice"`
	BetaHeader string        `yaml:"beta_header"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
}

type AudioConfig struct {
	Backend       string `yaml:"backend"`
	FFmpegCommand string `yaml:"ffmpeg_command"`
	InputFormat   string `yaml:"input_format"`
	InputDevice   string `yaml:"input_device"`
	OutputFormat  string `yaml:"output_format"`
	OutputDevice  string `yaml:"output_device"`
	SampleRate    int    `yaml:"sample_rate"`
	FrameSamples  int    `yaml:"frame_samples"`
}

type SessionConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	VoiceTimeout         time.Duration `yaml:"voice_timeout"`
	SpeechThreshold      float64       `yaml:"speech_threshold"`
}

type RulesConfig struct {
	Path           string   `yaml:"path"`
	IterationLimit int      `yaml:"iteration_limit"`
	Inline         []string `yaml:"inline"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether an MQTT broker is configured.
func (c MQTTConfig) Enabled() bool {
	return strings.TrimSpace(c.Broker) != ""
}

// Load resolves configuration from a .env file, an optional YAML file named
// by TUTORVOICE_CONFIG, environment variables and defaults, in increasing
// order of precedence for the last three.
func Load() (Config, error) {
	envFile := envOrDefault("TUTORVOICE_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := defaults(home)
	if path := strings.TrimSpace(os.Getenv("TUTORVOICE_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults(home string) Config {
	return Config{
		Realtime: RealtimeConfig{
			URL:        "wss://api.openai.com/v1/realtime",
			Model:      "gpt-4o-realtime-preview",
			Voice:      "alloy",
			BetaHeader: "realtime=v1",
			Heartbeat:  20 * time.Second,
		},
		Audio: AudioConfig{
			Backend:       BackendFFmpeg,
			FFmpegCommand: "ffmpeg",
			InputFormat:   "pulse",
			InputDevice:   "default",
			OutputFormat:  "pulse",
			OutputDevice:  "default",
			SampleRate:    24000,
			FrameSamples:  4096,
		},
		Session: SessionConfig{
			ReconnectBaseDelay:   time.Second,
			MaxReconnectAttempts: 3,
			VoiceTimeout:         10 * time.Second,
			SpeechThreshold:      0.02,
		},
		Rules: RulesConfig{
			Path:           filepath.Join(home, ".config", "tutorvoice", "substitutions.rules"),
			IterationLimit: 30,
		},
		Log: LogConfig{Level: "info"},
		API: APIConfig{Listen: "127.0.0.1:8787"},
		MQTT: MQTTConfig{
			Topic:    "tutorvoice/session",
			ClientID: "tutorvoice",
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	r := &cfg.Realtime
	r.URL = envOrDefault("TUTORVOICE_REALTIME_URL", r.URL)
	r.APIKey = firstNonEmpty(os.Getenv("TUTORVOICE_API_KEY"), os.Getenv("OPENAI_API_KEY"), r.APIKey)
	r.Model = envOrDefault("TUTORVOICE_MODEL", r.Model)
	r.Voice = envOrDefault("TUTORVOICE_VOICE", r.Voice)
	r.BetaHeader = envOrDefault("TUTORVOICE_BETA_HEADER", r.BetaHeader)
	r.Heartbeat = envOrDefaultMillis("TUTORVOICE_HEARTBEAT_MS", r.Heartbeat)

	a := &cfg.Audio
	a.Backend = envOrDefault("TUTORVOICE_AUDIO_BACKEND", a.Backend)
	a.FFmpegCommand = envOrDefault("TUTORVOICE_FFMPEG_COMMAND", a.FFmpegCommand)
	a.InputFormat = envOrDefault("TUTORVOICE_AUDIO_INPUT_FORMAT", a.InputFormat)
	a.InputDevice = firstNonEmpty(
		os.Getenv("TUTORVOICE_AUDIO_INPUT_DEVICE"),
		os.Getenv("PULSE_SOURCE"),
		a.InputDevice,
	)
	a.OutputFormat = envOrDefault("TUTORVOICE_AUDIO_OUTPUT_FORMAT", a.OutputFormat)
	a.OutputDevice = firstNonEmpty(
		os.Getenv("TUTORVOICE_AUDIO_OUTPUT_DEVICE"),
		os.Getenv("PULSE_SINK"),
		a.OutputDevice,
	)
	a.SampleRate = envOrDefaultInt("TUTORVOICE_SAMPLE_RATE", a.SampleRate)
	a.FrameSamples = envOrDefaultInt("TUTORVOICE_FRAME_SAMPLES", a.FrameSamples)

	s := &cfg.Session
	s.ReconnectBaseDelay = envOrDefaultMillis("TUTORVOICE_RECONNECT_BASE_MS", s.ReconnectBaseDelay)
	s.MaxReconnectAttempts = envOrDefaultInt("TUTORVOICE_MAX_RECONNECT_ATTEMPTS", s.MaxReconnectAttempts)
	s.VoiceTimeout = time.Duration(firstNonNegativeInt("TUTORVOICE_VOICE_TIMEOUT_MS", "VOICE_TIMEOUT_MS", int(s.VoiceTimeout/time.Millisecond))) * time.Millisecond
	s.SpeechThreshold = envOrDefaultFloat("TUTORVOICE_SPEECH_THRESHOLD", s.SpeechThreshold)

	cfg.Rules.Path = envOrDefault("TUTORVOICE_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("TUTORVOICE_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	cfg.Log.Level = firstNonEmpty(os.Getenv("LOG_LEVEL"), cfg.Log.Level)
	cfg.Log.Format = envOrDefault("TUTORVOICE_LOG_FORMAT", cfg.Log.Format)

	cfg.API.Listen = envOrDefault("TUTORVOICE_LISTEN", cfg.API.Listen)

	m := &cfg.MQTT
	m.Broker = envOrDefault("TUTORVOICE_MQTT_BROKER", m.Broker)
	m.Topic = envOrDefault("TUTORVOICE_MQTT_TOPIC", m.Topic)
	m.ClientID = envOrDefault("TUTORVOICE_MQTT_CLIENT_ID", m.ClientID)
	m.Username = envOrDefault("TUTORVOICE_MQTT_USERNAME", m.Username)
	m.Password = envOrDefault("TUTORVOICE_MQTT_PASSWORD", m.Password)
}

func (c *Config) normalize() error {
	c.Audio.Backend = strings.ToLower(strings.TrimSpace(c.Audio.Backend))
	switch c.Audio.Backend {
	case "":
		c.Audio.Backend = BackendFFmpeg
	case BackendFFmpeg, BackendNative:
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 24000
	}
	if c.Audio.FrameSamples < 256 {
		c.Audio.FrameSamples = 4096
	}
	if c.Session.ReconnectBaseDelay <= 0 {
		c.Session.ReconnectBaseDelay = time.Second
	}
	if c.Session.MaxReconnectAttempts < 1 {
		return fmt.Errorf("max reconnect attempts must be at least 1, got %d", c.Session.MaxReconnectAttempts)
	}
	if c.Session.SpeechThreshold < 0 || c.Session.SpeechThreshold > 1 {
		return fmt.Errorf("speech threshold must be within [0, 1], got %v", c.Session.SpeechThreshold)
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = 30
	}
	c.Rules.Path = firstExisting(c.Rules.Path)
	return nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
