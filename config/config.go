// Package config carries the small set of values the core depends on an
// external configuration collaborator to provide. Loading these values from
// a file or environment is the caller's responsibility — New validates a
// Config that has already been assembled, and its only environment read is
// the EMAIL fallback.
package config

import (
	"fmt"
	"os"
)

// Config holds the keys the core consumes.
type Config struct {
	Version   string
	RepoLink  string
	UserAgent string
	Email     string // optional; falls back to the EMAIL environment variable
}

// New validates cfg, defaulting Email from the EMAIL environment variable
// when unset, and returns an error naming every missing required field.
func New(cfg Config) (Config, error) {
	if cfg.Email == "" {
		cfg.Email = os.Getenv("EMAIL")
	}

	var missing []string
	if cfg.Version == "" {
		missing = append(missing, "version")
	}
	if cfg.RepoLink == "" {
		missing = append(missing, "repo_link")
	}
	if cfg.UserAgent == "" {
		missing = append(missing, "user_agent")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required fields: %v", missing)
	}
	return cfg, nil
}
