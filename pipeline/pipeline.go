// Package pipeline strings the build, push, update and test steps together
// into the stages of a build→push→deploy→verify run for one function.
//
// Every stage operation can be invoked on its own and re-running one is safe:
// builds and pushes overwrite their outputs and function updates wait for the
// function to settle before and after updating it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/shono-io/funcship/exec"
	"github.com/shono-io/funcship/registry"
	"github.com/shono-io/funcship/repo"
	"github.com/shono-io/funcship/sdk"
)

type (
	Builder interface {
		Build(ctx context.Context, spec exec.BuildSpec) error
	}

	Pusher interface {
		Push(ctx context.Context, localImage string, ref sdk.ImageRef) (sdk.ImageRef, error)
	}

	Updater interface {
		AwaitStable(ctx context.Context, name string) error
		Update(ctx context.Context, name string, image sdk.ImageRef) error
	}

	// Deps are the collaborators a Pipeline drives. Executor may be nil when
	// containers are never run locally; Ledger defaults to an in-memory one.
	Deps struct {
		Builder  Builder
		Pusher   Pusher
		Cleaner  registry.Cleaner
		Updater  Updater
		Executor exec.Executor
		Ledger   repo.Repository
		Hooks    Hooks
		Out      io.Writer
		Log      zerolog.Logger
	}
)

type Pipeline struct {
	Log zerolog.Logger

	cfg      Config
	builder  Builder
	pusher   Pusher
	cleaner  registry.Cleaner
	updater  Updater
	executor exec.Executor
	ledger   repo.Repository
	hooks    Hooks
	banner   *Banner
	out      io.Writer
	now      func() time.Time
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	if deps.Builder == nil || deps.Pusher == nil || deps.Cleaner == nil || deps.Updater == nil {
		return nil, errors.New("builder, pusher, cleaner and updater are required")
	}

	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = repo.NewMemoryRepository()
	}

	return &Pipeline{
		Log:      deps.Log,
		cfg:      cfg,
		builder:  deps.Builder,
		pusher:   deps.Pusher,
		cleaner:  deps.Cleaner,
		updater:  deps.Updater,
		executor: deps.Executor,
		ledger:   ledger,
		hooks:    deps.Hooks,
		banner:   &Banner{Out: out, Prefix: cfg.HeaderPrefix},
		out:      out,
		now:      time.Now,
	}, nil
}

// Config returns the normalized configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Build builds the local image.
func (p *Pipeline) Build(ctx context.Context) error {
	p.banner.Print("Building docker image " + p.cfg.Image)

	return p.builder.Build(ctx, exec.BuildSpec{
		SourceDir:  p.cfg.SourceDir,
		DockerFile: p.cfg.DockerFile,
		Image:      p.cfg.Image,
	})
}

// BuildDocker builds the image and runs the containerized tests.
func (p *Pipeline) BuildDocker(ctx context.Context) error {
	if err := p.Build(ctx); err != nil {
		return err
	}
	return p.Test(ctx, sdk.DockerStage)
}

// BuildDev runs BuildDocker, deploys the image to the dev function and tests
// it there.
func (p *Pipeline) BuildDev(ctx context.Context) error {
	if err := p.BuildDocker(ctx); err != nil {
		return err
	}
	if err := p.Deploy(ctx, sdk.DevStage); err != nil {
		return err
	}
	return p.Test(ctx, sdk.DevStage)
}

// BuildProd runs BuildDev, then deploys the same image to production and
// tests it there.
func (p *Pipeline) BuildProd(ctx context.Context) error {
	if err := p.BuildDev(ctx); err != nil {
		return err
	}
	if err := p.Deploy(ctx, sdk.ProdStage); err != nil {
		return err
	}
	return p.Test(ctx, sdk.ProdStage)
}

// Push pushes the local image under the stage's tag and returns the digest
// qualified reference of what was pushed.
func (p *Pipeline) Push(ctx context.Context, stage sdk.Stage) (sdk.ImageRef, error) {
	ref, err := p.cfg.ImageRef(stage)
	if err != nil {
		return sdk.ImageRef{}, err
	}

	p.banner.Print("Pushing docker image " + stage.String())
	p.Log.Info().Str("stage", stage.String()).Str("image", ref.String()).Msg("pushing image")

	pushed, err := p.pusher.Push(ctx, p.cfg.Image, ref)
	if err != nil {
		return sdk.ImageRef{}, err
	}

	_, _ = fmt.Fprintf(p.out, "Pushed image URI: %s\n", pushed)
	return pushed, nil
}

// Deploy pushes the image for a stage and points the stage's function at it.
func (p *Pipeline) Deploy(ctx context.Context, stage sdk.Stage) error {
	if _, err := p.cfg.FunctionName(stage); err != nil {
		return err
	}

	pushed, err := p.Push(ctx, stage)
	if err != nil {
		return err
	}

	if p.cfg.Registry.PruneUntagged {
		if err := p.CleanupUntagged(ctx); err != nil {
			return err
		}
	}

	return p.Update(ctx, stage, pushed)
}

// Update points the stage's function at image and records the deployment.
func (p *Pipeline) Update(ctx context.Context, stage sdk.Stage, image sdk.ImageRef) error {
	fn, err := p.cfg.FunctionName(stage)
	if err != nil {
		return err
	}

	p.banner.Print("Updating function " + stage.String())
	p.Log.Info().Str("stage", stage.String()).Str("function", fn).Str("image", image.String()).Msg("updating function")

	if err := p.updater.Update(ctx, fn, image); err != nil {
		return err
	}

	return p.ledger.Record(ctx, repo.Deployment{
		Stage:    stage.String(),
		Function: fn,
		Image:    image.String(),
		Time:     p.now().UTC(),
	})
}

// Wait blocks until the stage's function has no update in flight.
func (p *Pipeline) Wait(ctx context.Context, stage sdk.Stage) error {
	fn, err := p.cfg.FunctionName(stage)
	if err != nil {
		return err
	}
	return p.updater.AwaitStable(ctx, fn)
}

// Test runs the test hook of a stage. The docker stage gets the built image
// running in a local container first when that is enabled.
func (p *Pipeline) Test(ctx context.Context, stage sdk.Stage) error {
	target, err := p.target(ctx, stage)
	if err != nil {
		return err
	}

	p.banner.Print("Testing " + stage.String())

	if stage == sdk.DockerStage && p.cfg.Container.Enabled {
		if _, err := p.RunContainer(ctx); err != nil {
			return err
		}
		defer func() {
			if err := p.StopContainer(context.WithoutCancel(ctx)); err != nil {
				p.Log.Warn().Err(err).Msg("unable to stop test container")
			}
		}()
	}

	if err := p.hooks.get(stage)(ctx, target); err != nil {
		return fmt.Errorf("tests for %s failed: %w", stage, err)
	}
	return nil
}

func (p *Pipeline) target(ctx context.Context, stage sdk.Stage) (Target, error) {
	t := Target{Stage: stage}

	switch stage {
	case sdk.LocalStage, sdk.DockerStage:
		t.Image = p.cfg.Image
		return t, nil
	case sdk.DevStage, sdk.ProdStage:
	default:
		return Target{}, fmt.Errorf("%w: %s", sdk.ErrInvalidStage, stage)
	}

	fn, err := p.cfg.FunctionName(stage)
	if err != nil {
		return Target{}, err
	}
	t.Function = fn

	d, err := p.ledger.Latest(ctx, stage)
	if err != nil {
		return Target{}, err
	}
	if d != nil {
		t.Image = d.Image
		return t, nil
	}

	ref, err := p.cfg.ImageRef(stage)
	if err != nil {
		return Target{}, err
	}
	t.Image = ref.String()
	return t, nil
}

// CleanupUntagged deletes the untagged images of the repository.
func (p *Pipeline) CleanupUntagged(ctx context.Context) error {
	ref, err := p.cfg.RepositoryRef()
	if err != nil {
		return err
	}

	p.banner.Print("Deleting untagged images from " + ref.String())

	n, err := p.cleaner.DeleteUntagged(ctx, ref)
	if err != nil {
		return err
	}
	p.Log.Info().Int("deleted", n).Str("repository", ref.String()).Msg("untagged images deleted")
	return nil
}

// DeleteAllImages empties the repository.
func (p *Pipeline) DeleteAllImages(ctx context.Context) error {
	ref, err := p.cfg.RepositoryRef()
	if err != nil {
		return err
	}

	p.banner.Print("Deleting all images from " + ref.String())

	n, err := p.cleaner.DeleteAll(ctx, ref)
	if err != nil {
		return err
	}
	p.Log.Info().Int("deleted", n).Str("repository", ref.String()).Msg("images deleted")
	return nil
}

// RunContainer starts the local image as a detached container.
func (p *Pipeline) RunContainer(ctx context.Context) (*exec.Execution, error) {
	if p.executor == nil {
		return nil, errors.New("no container executor configured")
	}

	p.banner.Print(fmt.Sprintf("Starting docker image %s (container: %s)", p.cfg.Image, p.cfg.Container.Name))

	return p.executor.Run(ctx, exec.RunSpec{
		Image:         p.cfg.Image,
		Name:          p.cfg.Container.Name,
		HostPort:      p.cfg.Container.HostPort,
		ContainerPort: p.cfg.Container.Port,
	})
}

// StopContainer stops the container started by RunContainer.
func (p *Pipeline) StopContainer(ctx context.Context) error {
	if p.executor == nil {
		return errors.New("no container executor configured")
	}

	p.banner.Print("Stopping docker container " + p.cfg.Container.Name)
	return p.executor.Stop(ctx, p.cfg.Container.Name)
}

// History returns the recorded deployments of a stage, oldest first.
func (p *Pipeline) History(ctx context.Context, stage sdk.Stage) ([]repo.Deployment, error) {
	if !stage.Remote() {
		return nil, fmt.Errorf("%w: %s is never deployed", sdk.ErrInvalidStage, stage)
	}
	return p.ledger.History(ctx, stage)
}
