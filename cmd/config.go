package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shono-io/funcship/exec"
	"github.com/shono-io/funcship/function"
	"github.com/shono-io/funcship/pipeline"
	"github.com/shono-io/funcship/repo"
)

const (
	cliBackend = "cli"
	sdkBackend = "sdk"
)

type (
	// Settings is everything funcship reads from its config file and
	// environment.
	Settings struct {
		pipeline.Config `mapstructure:",squash"`

		Backend  string        `mapstructure:"backend"`
		Build    BuildSettings `mapstructure:"build"`
		Wait     WaitSettings  `mapstructure:"wait"`
		Hooks    HookSettings  `mapstructure:"hooks"`
		Ledger   repo.Config   `mapstructure:"ledger"`
		LogLevel string        `mapstructure:"log_level"`
	}

	BuildSettings struct {
		RateLimitTimeout time.Duration `mapstructure:"rate_limit_timeout"`
	}

	WaitSettings struct {
		Interval time.Duration `mapstructure:"interval"`
		Attempts int           `mapstructure:"attempts"`
	}

	// HookSettings hold the argument vectors of the test commands.
	HookSettings struct {
		Docker []string `mapstructure:"docker"`
		Dev    []string `mapstructure:"dev"`
		Prod   []string `mapstructure:"prod"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("image", "")
	v.SetDefault("registry.host", "")
	v.SetDefault("registry.repository", "")
	v.SetDefault("registry.prune_untagged", true)
	v.SetDefault("region", "")
	v.SetDefault("source_dir", ".")
	v.SetDefault("docker_file", "")
	v.SetDefault("functions.dev", "")
	v.SetDefault("functions.prod", "")
	v.SetDefault("header_prefix", "")

	v.SetDefault("backend", cliBackend)
	v.SetDefault("build.rate_limit_timeout", exec.DefaultRateLimitTimeout)
	v.SetDefault("wait.interval", function.DefaultPollInterval)
	v.SetDefault("wait.attempts", function.DefaultMaxAttempts)

	v.SetDefault("hooks.docker", []string{})
	v.SetDefault("hooks.dev", []string{})
	v.SetDefault("hooks.prod", []string{})

	v.SetDefault("container.enabled", false)
	v.SetDefault("container.name", "")
	v.SetDefault("container.host_port", 9000)
	v.SetDefault("container.port", 8080)

	v.SetDefault("ledger.url", "")
	v.SetDefault("ledger.jwt", "")
	v.SetDefault("ledger.seed", "")
	v.SetDefault("ledger.bucket", repo.DefaultBucket)
	v.SetDefault("ledger.prefix", repo.DefaultPrefix)

	v.SetDefault("log_level", "info")
}

// loadSettings decodes and validates the settings held by v.
func loadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unable to decode configuration: %w", err)
	}

	cfg, err := s.Config.Normalize()
	if err != nil {
		return Settings{}, err
	}
	s.Config = cfg

	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		s.Backend = cliBackend
	case cliBackend, sdkBackend:
	default:
		return Settings{}, fmt.Errorf("%w: unknown backend %q", pipeline.ErrInvalidConfig, s.Backend)
	}

	if s.Wait.Attempts < 0 || s.Wait.Interval < 0 {
		return Settings{}, fmt.Errorf("%w: wait interval and attempts must not be negative", pipeline.ErrInvalidConfig)
	}

	return s, nil
}
