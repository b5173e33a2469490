// Package config loads go-waiter settings from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultModel         = "models/gemini-2.0-flash-live-001"
	DefaultPort          = "3000"
	DefaultCustomerPhone = "+1234567890"
	DefaultLiveBackend   = "ws"
	DefaultAudioBackend  = "device"
	DefaultOutboundQueue = 5
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
	StoreMemory   = "memory"
)

// ErrMissing is returned by Validate when a required variable is unset.
var ErrMissing = errors.New("config: missing required variable")

// Config is the full runtime configuration.
type Config struct {
	GoogleAPIKey  string
	Model         string
	GeminiBaseURL string
	LiveBackend   string

	StoreBackend    string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string

	AMQPURL string

	Port          string
	LogLevel      string
	CustomerPhone string
	AudioBackend  string
	OutboundQueue int

	SystemPromptFile string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	c := &Config{
		GoogleAPIKey:     Env("GOOGLE_API_KEY", ""),
		Model:            Env("GEMINI_MODEL", DefaultModel),
		GeminiBaseURL:    Env("GEMINI_BASE_URL", ""),
		LiveBackend:      Env("LIVE_BACKEND", DefaultLiveBackend),
		DatabaseURL:      Env("DATABASE_URL", ""),
		SupabaseURL:      Env("SUPABASE_URL", ""),
		SupabaseAnonKey:  Env("SUPABASE_ANON_KEY", ""),
		AMQPURL:          Env("AMQP_URL", ""),
		Port:             Env("PORT", DefaultPort),
		LogLevel:         Env("LOG_LEVEL", "info"),
		CustomerPhone:    Env("CUSTOMER_PHONE", DefaultCustomerPhone),
		AudioBackend:     Env("AUDIO_BACKEND", DefaultAudioBackend),
		OutboundQueue:    EnvInt("OUTBOUND_QUEUE", DefaultOutboundQueue),
		SystemPromptFile: Env("SYSTEM_PROMPT_FILE", ""),
	}
	c.StoreBackend = Env("STORE_BACKEND", c.inferStore())
	return c
}

func (c *Config) inferStore() string {
	switch {
	case c.DatabaseURL != "":
		return StorePostgres
	case c.SupabaseURL != "" || c.SupabaseAnonKey != "":
		return StoreSupabase
	default:
		return StorePostgres
	}
}

// Validate checks that the credentials needed at startup are present.
func (c *Config) Validate() error {
	var missing []string
	if c.GoogleAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreSupabase:
		if c.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	if c.OutboundQueue <= 0 {
		return fmt.Errorf("config: OUTBOUND_QUEUE must be positive, got %d", c.OutboundQueue)
	}
	return nil
}

// SystemPrompt returns the contents of SYSTEM_PROMPT_FILE, or fallback
// when no file is configured.
func (c *Config) SystemPrompt(fallback string) (string, error) {
	if c.SystemPromptFile == "" {
		return fallback, nil
	}
	b, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("config: read system prompt: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Addr returns the listen address for the web server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Env returns the value of key, or def if unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt returns key parsed as an int, or def if unset or malformed.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// MustLoad loads and validates the configuration, exiting the process on
// failure. Missing credentials are a fatal startup error.
func MustLoad() *Config {
	c, err := Load()
	if err == nil {
		err = c.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprintln(os.Stderr, "Usage: GOOGLE_API_KEY=... DATABASE_URL=postgres://... waiter serve")
		os.Exit(1)
	}
	return c
}
