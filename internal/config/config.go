package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string
	LogLevel    string

	// Observability
	SentryDSN         string // Sentry DSN for error tracking
	LangfusePublicKey string // Langfuse public key
	LangfuseSecretKey string // Langfuse secret key
	LangfuseHost      string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled   bool   // Feature flag for Langfuse

	// Auth mode
	// - "none": No auth (self-hosted, local dev)
	// - "gateway": Trust X-User-* headers from an upstream gateway
	AuthMode      string
	SessionSecret string

	// Generation history. Empty disables persistence; "sqlite:<path>" uses SQLite.
	DatabaseURL string

	// Model
	VocabPath      string
	ModelBackend   string // "lstm" or "remote"
	ModelPath      string
	ModelURL       string
	ModelName      string
	SequenceLength int
	StepDuration   float64

	// Generation
	MinLength         int
	MaxLength         int
	DefaultLength     int
	FlushTrailingNote bool

	// Rendering
	OutputDir     string
	SoundfontPath string
	SampleRate    int
	FluidSynthBin string // "none" disables audio
	MuseScoreBin  string // "none" disables the score image
	RenderTimeout time.Duration

	// Terminal UI preview
	MIDIOutPort string
}

// Defaults shared with the UI
const (
	DefaultSequenceLength = 64
	DefaultStepDuration   = 0.25
	DefaultMinLength      = 100
	DefaultMaxLength      = 1000
	DefaultLength         = 500
)

func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:      getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:   getEnvBool("LANGFUSE_ENABLED", false),
		AuthMode:          getEnv("AUTH_MODE", "none"), // Default to no auth for self-hosted
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		VocabPath:         getEnv("VOCAB_PATH", ""),
		ModelBackend:      getEnv("MODEL_BACKEND", "lstm"),
		ModelPath:         getEnv("MODEL_PATH", "./model/cpu_model.json"),
		ModelURL:          getEnv("MODEL_URL", ""),
		ModelName:         getEnv("MODEL_NAME", "melody"),
		SequenceLength:    getEnvInt("SEQUENCE_LENGTH", DefaultSequenceLength),
		StepDuration:      getEnvFloat("STEP_DURATION", DefaultStepDuration),
		MinLength:         getEnvInt("MIN_LENGTH", DefaultMinLength),
		MaxLength:         getEnvInt("MAX_LENGTH", DefaultMaxLength),
		DefaultLength:     getEnvInt("DEFAULT_LENGTH", DefaultLength),
		FlushTrailingNote: getEnvBool("FLUSH_TRAILING_NOTE", false),
		OutputDir:         getEnv("OUTPUT_DIR", "./output"),
		SoundfontPath:     getEnv("SOUNDFONT_PATH", "./sounds/sf2/default-GM.sf2"),
		SampleRate:        getEnvInt("SAMPLE_RATE", 16000),
		FluidSynthBin:     getEnv("FLUIDSYNTH_BIN", "fluidsynth"),
		MuseScoreBin:      getEnv("MUSESCORE_BIN", "mscore3"),
		RenderTimeout:     getEnvDuration("RENDER_TIMEOUT", 60*time.Second),
		MIDIOutPort:       getEnv("MIDI_OUT_PORT", ""),
	}
}

// Validate checks values that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	var problems []string

	if c.SequenceLength <= 0 {
		problems = append(problems, "SEQUENCE_LENGTH must be positive")
	}
	if c.StepDuration <= 0 {
		problems = append(problems, "STEP_DURATION must be positive")
	}
	if c.MinLength <= 0 || c.MaxLength < c.MinLength {
		problems = append(problems, "MIN_LENGTH and MAX_LENGTH must form a positive range")
	}
	if c.DefaultLength < c.MinLength || c.DefaultLength > c.MaxLength {
		problems = append(problems, "DEFAULT_LENGTH must lie between MIN_LENGTH and MAX_LENGTH")
	}
	switch c.ModelBackend {
	case "lstm":
	case "remote":
		if c.ModelURL == "" {
			problems = append(problems, "MODEL_URL is required for the remote backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown MODEL_BACKEND %q", c.ModelBackend))
	}
	if c.AuthMode != "none" && c.AuthMode != "gateway" {
		problems = append(problems, fmt.Sprintf("unknown AUTH_MODE %q", c.AuthMode))
	}
	if c.IsProduction() && c.SessionSecret == "" {
		problems = append(problems, "SESSION_SECRET is required in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// IsGatewayMode returns true if running behind an authenticating gateway
func (c *Config) IsGatewayMode() bool {
	return c.AuthMode == "gateway"
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AudioEnabled reports whether FluidSynth should run
func (c *Config) AudioEnabled() bool {
	return c.FluidSynthBin != "" && c.FluidSynthBin != "none"
}

// ScoreImageEnabled reports whether MuseScore should run
func (c *Config) ScoreImageEnabled() bool {
	return c.MuseScoreBin != "" && c.MuseScoreBin != "none"
}
