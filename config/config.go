package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Runner struct {
	DBPath          string `env:"DB_PATH, default=spool.db"`
	LogDir          string `env:"LOG_DIR, default=.spool/logs"`
	WorkflowDir     string `env:"WORKFLOW_DIR, default=.spool/workflows"`
	DefaultImage    string `env:"DEFAULT_IMAGE, default=debian:bookworm-slim"`
	WorkflowTimeout string `env:"WORKFLOW_TIMEOUT, default=5m"`
	MaxWorkflows    int    `env:"MAX_WORKFLOWS, default=4"`
	Dev             bool   `env:"DEV, default=false"`
}

type Secrets struct {
	Provider string        `env:"PROVIDER, default=sqlite"`
	DBPath   string        `env:"DB_PATH, default=spool.db"`
	OpenBao  OpenBaoConfig `env:",prefix=OPENBAO_"`
}

type OpenBaoConfig struct {
	Addr     string `env:"ADDR"`
	RoleID   string `env:"ROLE_ID"`
	SecretID string `env:"SECRET_ID"`
	Mount    string `env:"MOUNT, default=spool"`
}

type Config struct {
	Runner  Runner  `env:",prefix=SPOOL_RUNNER_"`
	Secrets Secrets `env:",prefix=SPOOL_SECRETS_"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Timeout parses the configured workflow timeout, falling back to
// five minutes on a bad value.
func (r Runner) Timeout() time.Duration {
	d, err := time.ParseDuration(r.WorkflowTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
