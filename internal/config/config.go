package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded entirely from the environment. GitHub coordinates may be
// absent; the remote client reports that as a configuration error on the
// operation that needed them, not at startup, so a viewer-only deployment
// runs without any remote settings.
type Config struct {
	Addr       string `env:"HORIZON_ADDR" envDefault:":8080"`
	CORSOrigin string `env:"HORIZON_CORS_ORIGIN" envDefault:"*"`
	Verbose    bool   `env:"HORIZON_VERBOSE" envDefault:"false"`

	// UniversePath is the canonical on-disk location of the universe
	// document.
	UniversePath string `env:"HORIZON_UNIVERSE_PATH" envDefault:"public/universe/universe.json"`

	// Admin authentication. Hash wins over plaintext; plaintext is the
	// development fallback.
	AdminPasswordHash string        `env:"HORIZON_ADMIN_PASSWORD_HASH"`
	AdminPassword     string        `env:"HORIZON_ADMIN_PASSWORD"`
	SessionSecret     string        `env:"HORIZON_SESSION_SECRET" envDefault:"horizon-dev-secret"`
	SessionTTL        time.Duration `env:"HORIZON_SESSION_TTL" envDefault:"12h"`

	// Login rate limiting per client IP.
	LoginMaxAttempts int           `env:"HORIZON_LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow      time.Duration `env:"HORIZON_LOGIN_WINDOW" envDefault:"15m"`
	RedisURL         string        `env:"REDIS_URL"`

	// Remote repository target. Either GitHub coordinates or a local git
	// directory; GitDir takes precedence when both are set.
	GitHubToken       string `env:"GITHUB_TOKEN"`
	GitHubOwner       string `env:"GITHUB_OWNER"`
	GitHubRepo        string `env:"GITHUB_REPO"`
	GitHubBranch      string `env:"GITHUB_BRANCH" envDefault:"main"`
	GitHubContentPath string `env:"GITHUB_CONTENT_PATH" envDefault:"public/universe/universe.json"`
	GitDir            string `env:"HORIZON_GIT_DIR"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
