package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/exec"
	"github.com/shono-io/funcship/function"
	"github.com/shono-io/funcship/pipeline"
	"github.com/shono-io/funcship/registry"
	"github.com/shono-io/funcship/repo"
	"github.com/shono-io/funcship/runner"
)

// backend bundles the components that talk to the cloud provider.
type backend struct {
	tokens    registry.TokenSource
	cleaner   registry.Cleaner
	functions function.Client
}

func cliBackendFor(r runner.Runner) backend {
	return backend{
		tokens:    &registry.CLITokenSource{Runner: r},
		cleaner:   &registry.CLICleaner{Runner: r},
		functions: &function.CLIClient{Runner: r},
	}
}

func sdkBackendFor() backend {
	return backend{
		tokens: &registry.ECRTokenSource{
			NewClient: func(ctx context.Context, region string) (registry.ECRAuthAPI, error) {
				cfg, err := loadAWSConfig(ctx, region)
				if err != nil {
					return nil, err
				}
				return ecr.NewFromConfig(cfg), nil
			},
		},
		cleaner: &registry.ECRCleaner{
			NewClient: func(ctx context.Context, region string) (registry.ECRImagesAPI, error) {
				cfg, err := loadAWSConfig(ctx, region)
				if err != nil {
					return nil, err
				}
				return ecr.NewFromConfig(cfg), nil
			},
		},
		functions: &function.LambdaClient{
			NewClient: func(ctx context.Context, region string) (function.LambdaAPI, error) {
				cfg, err := loadAWSConfig(ctx, region)
				if err != nil {
					return nil, err
				}
				return lambda.NewFromConfig(cfg), nil
			},
		},
	}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load aws configuration: %w", err)
	}
	return cfg, nil
}

func openLedger(ctx context.Context, cfg repo.Config) (repo.Repository, error) {
	if cfg.Url == "" {
		log.Debug().Msg("no ledger url configured, keeping deployments in memory")
		return repo.NewMemoryRepository(), nil
	}

	nc, err := repo.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to ledger: %w", err)
	}

	r, err := repo.NewNatsRepository(ctx, nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return r, nil
}

// newPipeline wires the pipeline for s. The returned close function releases
// the ledger and docker connections.
func newPipeline(ctx context.Context, s Settings, out io.Writer) (*pipeline.Pipeline, func(), error) {
	r := runner.NewLocalWithOutput(out)

	var b backend
	switch s.Backend {
	case sdkBackend:
		b = sdkBackendFor()
	default:
		b = cliBackendFor(r)
	}

	awaiter := function.NewAwaiter(b.functions, s.Region)
	if s.Wait.Interval > 0 {
		awaiter.Interval = s.Wait.Interval
	}
	if s.Wait.Attempts > 0 {
		awaiter.MaxAttempts = s.Wait.Attempts
	}

	executor, err := exec.NewDockerExecutor(exec.Config{FromEnv: true})
	if err != nil {
		return nil, nil, err
	}

	ledger, err := openLedger(ctx, s.Ledger)
	if err != nil {
		_ = executor.Close()
		return nil, nil, err
	}

	closer := func() {
		if err := ledger.Close(); err != nil {
			log.Warn().Err(err).Msg("unable to close ledger")
		}
		if err := executor.Close(); err != nil {
			log.Warn().Err(err).Msg("unable to close docker client")
		}
	}

	p, err := pipeline.New(s.Config, pipeline.Deps{
		Builder:  exec.NewBuilder(r, s.Build.RateLimitTimeout),
		Pusher:   registry.NewPusher(r, b.tokens),
		Cleaner:  b.cleaner,
		Updater:  awaiter,
		Executor: executor,
		Ledger:   ledger,
		Hooks: pipeline.Hooks{
			Docker: pipeline.CommandHook(r, s.Hooks.Docker),
			Dev:    pipeline.CommandHook(r, s.Hooks.Dev),
			Prod:   pipeline.CommandHook(r, s.Hooks.Prod),
		},
		Out: out,
		Log: log.Logger,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}

	return p, closer, nil
}
