package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultModel      = "perplexity/llama-3.1-sonar-large-128k-online"
	DefaultPort       = "5000"
	DefaultBaseURL    = "https://openrouter.ai/api/v1"
	DefaultTimeout    = 10 * time.Minute
	APIKeyEnv         = "OPENROUTER_API_KEY"
	apiKeyParamSuffix = "/openrouter-api-key"
)

// Config is read from the environment once at startup and passed by value.
type Config struct {
	APIKey  string
	Model   string
	Port    string
	BaseURL string

	// UpstreamTimeout bounds the whole upstream exchange, body reads included.
	UpstreamTimeout time.Duration

	// DeferStreamHeaders holds back the 200 until the upstream answered, so a
	// refused connection or non-2xx can still be reported as a 502.
	DeferStreamHeaders bool

	Referer string
	Title   string

	// ParamPrefix enables the SSM fallback for the API key.
	ParamPrefix string
}

// LoadDotEnv copies variables from the given files (default ".env") into the
// process environment. Variables already set are left alone and missing files
// are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

func Load() Config {
	return Config{
		APIKey:             strings.TrimSpace(os.Getenv(APIKeyEnv)),
		Model:              getEnv("MODEL_NAME", DefaultModel),
		Port:               getEnv("PORT", DefaultPort),
		BaseURL:            getEnv("OPENROUTER_BASE_URL", DefaultBaseURL),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", DefaultTimeout),
		DeferStreamHeaders: getEnvBool("DEFER_STREAM_HEADERS", false),
		Referer:            os.Getenv("OPENROUTER_REFERER"),
		Title:              os.Getenv("OPENROUTER_TITLE"),
		ParamPrefix:        strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
	}
}

func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("config: invalid PORT %q", c.Port)
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("config: UPSTREAM_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("config: MODEL_NAME must not be empty")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("config: OPENROUTER_BASE_URL must not be empty")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// APIKeyParameter is the SSM parameter holding the key, or "" when the
// fallback is disabled.
func (c Config) APIKeyParameter() string {
	if c.ParamPrefix == "" {
		return ""
	}
	return c.ParamPrefix + apiKeyParamSuffix
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// bare integers are seconds
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
