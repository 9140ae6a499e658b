package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shono-io/funcship/exec"
	"github.com/shono-io/funcship/repo"
	"github.com/shono-io/funcship/sdk"
)

const testDigest = "sha256:d4c7852abfabaf3076bd6a84"

// recorder collects the calls of every fake in the order they happen.
type recorder struct {
	events []string

	buildErr  error
	pushErr   error
	updateErr error
	runErr    error
}

func (r *recorder) add(e string) {
	r.events = append(r.events, e)
}

type fakeBuilder struct{ r *recorder }

func (b fakeBuilder) Build(_ context.Context, spec exec.BuildSpec) error {
	b.r.add("build " + spec.Image)
	return b.r.buildErr
}

type fakePusher struct{ r *recorder }

func (p fakePusher) Push(_ context.Context, localImage string, ref sdk.ImageRef) (sdk.ImageRef, error) {
	p.r.add("push " + localImage + " " + ref.String())
	if p.r.pushErr != nil {
		return sdk.ImageRef{}, p.r.pushErr
	}
	return ref.WithDigest(testDigest), nil
}

type fakeCleaner struct{ r *recorder }

func (c fakeCleaner) DeleteUntagged(_ context.Context, ref sdk.ImageRef) (int, error) {
	c.r.add("untagged " + ref.String())
	return 2, nil
}

func (c fakeCleaner) DeleteAll(_ context.Context, ref sdk.ImageRef) (int, error) {
	c.r.add("all " + ref.String())
	return 5, nil
}

type fakeUpdater struct{ r *recorder }

func (u fakeUpdater) AwaitStable(_ context.Context, name string) error {
	u.r.add("await " + name)
	return nil
}

func (u fakeUpdater) Update(_ context.Context, name string, image sdk.ImageRef) error {
	u.r.add("update " + name + " " + image.String())
	return u.r.updateErr
}

type fakeExecutor struct{ r *recorder }

func (e fakeExecutor) Run(_ context.Context, spec exec.RunSpec) (*exec.Execution, error) {
	e.r.add("run " + spec.Name)
	if e.r.runErr != nil {
		return nil, e.r.runErr
	}
	return &exec.Execution{Id: "c1", Name: spec.Name, Image: spec.Image, Status: exec.StartedState}, nil
}

func (e fakeExecutor) Stop(_ context.Context, name string) error {
	e.r.add("stop " + name)
	return nil
}

func (e fakeExecutor) Close() error {
	return nil
}

func testConfig() Config {
	return Config{
		Image: "abc",
		Registry: RegistryConfig{
			Host:       "1253812538.dkr.ecr.us-east-1.amazonaws.com",
			Repository: "abc_x1",
		},
		Functions: FunctionsConfig{Dev: "abc-dev", Prod: "abc-prod"},
	}
}

func newTestPipeline(t *testing.T, cfg Config, hooks Hooks) (*Pipeline, *recorder, *bytes.Buffer) {
	t.Helper()

	r := &recorder{}
	out := &bytes.Buffer{}
	p, err := New(cfg, Deps{
		Builder:  fakeBuilder{r},
		Pusher:   fakePusher{r},
		Cleaner:  fakeCleaner{r},
		Updater:  fakeUpdater{r},
		Executor: fakeExecutor{r},
		Ledger:   repo.NewMemoryRepository(),
		Hooks:    hooks,
		Out:      out,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return p, r, out
}

func recordingHook(r *recorder) Hook {
	return func(_ context.Context, t Target) error {
		r.add("test " + t.Stage.String() + " " + t.Image + " " + t.Function)
		return nil
	}
}

const (
	devRef  = "1253812538.dkr.ecr.us-east-1.amazonaws.com/abc_x1:dev"
	prodRef = "1253812538.dkr.ecr.us-east-1.amazonaws.com/abc_x1:prod"
	repoRef = "1253812538.dkr.ecr.us-east-1.amazonaws.com/abc_x1"
	pinned  = "1253812538.dkr.ecr.us-east-1.amazonaws.com/abc_x1@" + testDigest
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Image = ""

	_, err := New(cfg, Deps{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
}

func TestBuildProdRunsEveryStageInOrder(t *testing.T) {
	p, rec, out := newTestPipeline(t, testConfig(), Hooks{})
	p.hooks = Hooks{Docker: recordingHook(rec), Dev: recordingHook(rec), Prod: recordingHook(rec)}

	require.NoError(t, p.BuildProd(context.Background()))

	assert.Equal(t, []string{
		"build abc",
		"test docker abc ",
		"push abc " + devRef,
		"update abc-dev " + pinned,
		"test dev " + pinned + " abc-dev",
		"push abc " + prodRef,
		"update abc-prod " + pinned,
		"test prod " + pinned + " abc-prod",
	}, rec.events)

	assert.Contains(t, out.String(), "Pushed image URI: "+pinned)
	assert.Contains(t, out.String(), "BUILDING DOCKER IMAGE ABC")
}

func TestDeployPrunesUntaggedImagesWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Registry.PruneUntagged = true
	p, rec, _ := newTestPipeline(t, cfg, Hooks{})

	require.NoError(t, p.Deploy(context.Background(), sdk.DevStage))

	assert.Equal(t, []string{
		"push abc " + devRef,
		"untagged " + repoRef,
		"update abc-dev " + pinned,
	}, rec.events)
}

func TestDeployRecordsTheDeployment(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), Hooks{})

	require.NoError(t, p.Deploy(context.Background(), sdk.DevStage))
	require.NoError(t, p.Deploy(context.Background(), sdk.DevStage))

	history, err := p.History(context.Background(), sdk.DevStage)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "dev", history[0].Stage)
	assert.Equal(t, "abc-dev", history[0].Function)
	assert.Equal(t, pinned, history[0].Image)
	assert.False(t, history[0].Time.IsZero())

	prod, err := p.History(context.Background(), sdk.ProdStage)
	require.NoError(t, err)
	assert.Empty(t, prod)
}

func TestDeployWithoutFunctionFailsBeforePushing(t *testing.T) {
	cfg := testConfig()
	cfg.Functions.Prod = ""
	p, rec, _ := newTestPipeline(t, cfg, Hooks{})

	err := p.Deploy(context.Background(), sdk.ProdStage)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Empty(t, rec.events)
}

func TestBuildFailureStopsThePipeline(t *testing.T) {
	p, rec, _ := newTestPipeline(t, testConfig(), Hooks{})
	rec.buildErr = errors.New("boom")

	err := p.BuildProd(context.Background())
	assert.ErrorIs(t, err, rec.buildErr)
	assert.Equal(t, []string{"build abc"}, rec.events)
}

func TestPushFailureSkipsUpdate(t *testing.T) {
	p, rec, out := newTestPipeline(t, testConfig(), Hooks{})
	rec.pushErr = errors.New("denied")

	err := p.Deploy(context.Background(), sdk.DevStage)
	assert.ErrorIs(t, err, rec.pushErr)
	assert.Equal(t, []string{"push abc " + devRef}, rec.events)
	assert.NotContains(t, out.String(), "Pushed image URI")
}

func TestUpdateFailureIsNotRecorded(t *testing.T) {
	p, rec, _ := newTestPipeline(t, testConfig(), Hooks{})
	rec.updateErr = errors.New("update failed")

	err := p.Deploy(context.Background(), sdk.DevStage)
	assert.ErrorIs(t, err, rec.updateErr)

	history, err := p.History(context.Background(), sdk.DevStage)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFailingHookFailsTheStage(t *testing.T) {
	hookErr := errors.New("assertion failed")
	p, rec, _ := newTestPipeline(t, testConfig(), Hooks{
		Docker: func(context.Context, Target) error { return hookErr },
	})

	err := p.BuildDev(context.Background())
	assert.ErrorIs(t, err, hookErr)
	assert.Contains(t, err.Error(), "tests for docker failed")
	assert.Equal(t, []string{"build abc"}, rec.events)
}

func TestMissingHookPassesTheStage(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), Hooks{})

	assert.NoError(t, p.Test(context.Background(), sdk.ProdStage))
}

func TestTestUsesTagWhenNothingWasDeployed(t *testing.T) {
	p, rec, _ := newTestPipeline(t, testConfig(), Hooks{})
	p.hooks = Hooks{Dev: recordingHook(rec)}

	require.NoError(t, p.Test(context.Background(), sdk.DevStage))
	assert.Equal(t, []string{"test dev " + devRef + " abc-dev"}, rec.events)
}

func TestDockerTestRunsContainerWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Container.Enabled = true
	cfg.Container.HostPort = 9000
	cfg.Container.Port = 8080

	p, rec, _ := newTestPipeline(t, cfg, Hooks{})
	p.hooks = Hooks{Docker: recordingHook(rec)}

	require.NoError(t, p.Test(context.Background(), sdk.DockerStage))
	assert.Equal(t, []string{
		"run abc-test",
		"test docker abc ",
		"stop abc-test",
	}, rec.events)
}

func TestDockerTestStopsContainerWhenHookFails(t *testing.T) {
	cfg := testConfig()
	cfg.Container.Enabled = true

	hookErr := errors.New("no response")
	p, rec, _ := newTestPipeline(t, cfg, Hooks{
		Docker: func(context.Context, Target) error { return hookErr },
	})

	err := p.Test(context.Background(), sdk.DockerStage)
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, []string{"run abc-test", "stop abc-test"}, rec.events)
}

func TestDockerTestFailsWhenContainerDoesNotStart(t *testing.T) {
	cfg := testConfig()
	cfg.Container.Enabled = true

	p, rec, _ := newTestPipeline(t, cfg, Hooks{})
	rec.runErr = errors.New("image abc has not been built")

	err := p.Test(context.Background(), sdk.DockerStage)
	assert.ErrorIs(t, err, rec.runErr)
	assert.Equal(t, []string{"run abc-test"}, rec.events)
}

func TestWaitAwaitsTheStageFunction(t *testing.T) {
	p, rec, _ := newTestPipeline(t, testConfig(), Hooks{})

	require.NoError(t, p.Wait(context.Background(), sdk.ProdStage))
	assert.Equal(t, []string{"await abc-prod"}, rec.events)

	assert.ErrorIs(t, p.Wait(context.Background(), sdk.DockerStage), sdk.ErrInvalidStage)
}

func TestCleanupOperationsUseTheRepository(t *testing.T) {
	p, rec, _ := newTestPipeline(t, testConfig(), Hooks{})

	require.NoError(t, p.CleanupUntagged(context.Background()))
	require.NoError(t, p.DeleteAllImages(context.Background()))

	assert.Equal(t, []string{"untagged " + repoRef, "all " + repoRef}, rec.events)
}

func TestContainerOperationsNeedAnExecutor(t *testing.T) {
	r := &recorder{}
	p, err := New(testConfig(), Deps{
		Builder: fakeBuilder{r},
		Pusher:  fakePusher{r},
		Cleaner: fakeCleaner{r},
		Updater: fakeUpdater{r},
		Out:     &bytes.Buffer{},
	})
	require.NoError(t, err)

	_, err = p.RunContainer(context.Background())
	assert.Error(t, err)
	assert.Error(t, p.StopContainer(context.Background()))
}

func TestHistoryRejectsLocalStages(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), Hooks{})

	_, err := p.History(context.Background(), sdk.DockerStage)
	assert.ErrorIs(t, err, sdk.ErrInvalidStage)
}
