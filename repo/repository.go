package repo

import (
	"context"
	"time"

	"github.com/shono-io/funcship/sdk"
)

type (
	Config struct {
		Url    string `mapstructure:"url"`
		Jwt    string `mapstructure:"jwt"`
		Seed   string `mapstructure:"seed"`
		Bucket string `mapstructure:"bucket"`
		Prefix string `mapstructure:"prefix"`
	}

	// Repository keeps track of which image each stage's function runs.
	Repository interface {
		Record(ctx context.Context, d Deployment) error
		// Latest returns nil when nothing was deployed to the stage yet.
		Latest(ctx context.Context, stage sdk.Stage) (*Deployment, error)
		// History returns the deployments of a stage, oldest first.
		History(ctx context.Context, stage sdk.Stage) ([]Deployment, error)
		Close() error
	}

	Deployment struct {
		Stage    string    `json:"stage"`
		Function string    `json:"function"`
		Image    string    `json:"image"`
		Time     time.Time `json:"time"`
		Revision uint64    `json:"-"`
	}
)

const (
	DefaultBucket = "funcship_deployments"
	DefaultPrefix = "funcship"
)
