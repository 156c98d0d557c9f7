// Package config loads weeknotes server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultAddr          = ":8080"
	DefaultGranolaMCPURL = "https://mcp.granola.ai/mcp"
	DefaultSummaryModel  = "google/gemini-2.5-flash-lite"
	DefaultSummaryAPIURL = "https://openrouter.ai/api/v1"
)

// Config holds the full server configuration.
type Config struct {
	// Addr is the listen address for the HTTP API (default ":8080").
	Addr string

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// BaseURL is the public URL the server is reachable at. OAuth redirect
	// URIs are built from it, so it must match what the browser sees.
	BaseURL string

	// Users maps API bearer tokens to user IDs. Only these users may use
	// the server; the map doubles as the access allowlist.
	Users map[string]string

	// StateSecret signs the OAuth state parameter so the callback can
	// recover the initiating user without a session.
	StateSecret string

	// GranolaMCPURL is the Granola MCP endpoint.
	GranolaMCPURL string

	Summary SummaryConfig

	// Debug enables debug logging.
	Debug bool
}

// SummaryConfig configures the note summarization backend.
type SummaryConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load reads configuration from the environment. A local .env file is
// loaded first when present so development does not need exported vars.
func Load() (*Config, error) {
	// Ignore the error: a missing .env file is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getenv("WEEKNOTES_ADDR", DefaultAddr),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		BaseURL:       strings.TrimSuffix(getenv("WEEKNOTES_BASE_URL", "http://localhost:8080"), "/"),
		StateSecret:   os.Getenv("WEEKNOTES_STATE_SECRET"),
		GranolaMCPURL: getenv("GRANOLA_MCP_URL", DefaultGranolaMCPURL),
		Summary: SummaryConfig{
			APIKey:  os.Getenv("OPENROUTER_API_KEY"),
			BaseURL: getenv("OPENROUTER_BASE_URL", DefaultSummaryAPIURL),
			Model:   getenv("SUMMARY_MODEL", DefaultSummaryModel),
		},
		Debug: os.Getenv("WEEKNOTES_DEBUG") == "true",
	}

	users, err := parseUsers(os.Getenv("WEEKNOTES_USERS"))
	if err != nil {
		return nil, err
	}
	cfg.Users = users

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.StateSecret == "" {
		return fmt.Errorf("WEEKNOTES_STATE_SECRET is required")
	}
	if len(c.Users) == 0 {
		return fmt.Errorf("WEEKNOTES_USERS is required (format: \"user-id:token,user-id:token\")")
	}
	return nil
}

// parseUsers parses the "user-id:token,user-id:token" allowlist format
// into a token -> user ID lookup map.
func parseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return users, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		userID, token, ok := strings.Cut(pair, ":")
		if !ok || userID == "" || token == "" {
			return nil, fmt.Errorf("invalid WEEKNOTES_USERS entry %q: want \"user-id:token\"", pair)
		}
		if existing, dup := users[token]; dup {
			return nil, fmt.Errorf("duplicate token for users %q and %q", existing, userID)
		}
		users[token] = userID
	}
	return users, nil
}

// RedirectURI returns the OAuth callback URI registered with Granola.
func (c *Config) RedirectURI() string {
	return c.BaseURL + "/auth/granola/callback"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
