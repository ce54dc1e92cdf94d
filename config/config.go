// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Optional credentials (Gemini, Watch2Gether) degrade the matching feature when
// absent instead of failing startup; use ValidateDiscordReady for the required token.
package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	// Discord
	DiscordToken  string
	DiscordPrefix string
	OwnerIDs      []string

	// External services (optional)
	GeminiAPIKey string
	W2GAPIKey    string

	// Database
	DatabasePath string

	// Environment
	Environment string
	Debug       bool
}

// Load reads environment variables and applies defaults. It doesn't fail if optional
// credentials are missing; commands depending on them report the feature as disabled.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")

	cfg.DiscordPrefix = os.Getenv("DISCORD_PREFIX")
	if cfg.DiscordPrefix == "" {
		cfg.DiscordPrefix = "!"
	}

	// Comma-separated list of Discord user IDs that may run owner-only commands.
	if raw := os.Getenv("DISCORD_OWNER_IDS"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if !isDigits(id) {
				return nil, fmt.Errorf("invalid DISCORD_OWNER_IDS entry %q: expected numeric snowflake", id)
			}
			cfg.OwnerIDs = append(cfg.OwnerIDs, id)
		}
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.W2GAPIKey = os.Getenv("W2G_API_KEY")

	cfg.DatabasePath = os.Getenv("DATABASE_PATH")
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "data/bot.db"
	}

	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	cfg.Debug = os.Getenv("DEBUG") == "1" || strings.EqualFold(os.Getenv("DEBUG"), "true")

	return cfg, nil
}

// ValidateDiscordReady checks the fields required to open the gateway connection.
func (c *Config) ValidateDiscordReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	return nil
}

// IsOwner reports whether the given user ID is in the configured owner set.
func (c *Config) IsOwner(userID string) bool {
	for _, id := range c.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsProduction reports whether the bot runs in production mode.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
