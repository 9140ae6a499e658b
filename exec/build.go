package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/runner"
	"github.com/shono-io/funcship/sdk"
)

const (
	DefaultRateLimitTimeout = 30 * time.Second
	rateLimitRetryDelay     = time.Second
)

type BuildSpec struct {
	SourceDir  string
	DockerFile string
	Image      string
}

func (s BuildSpec) args() []string {
	args := []string{"docker", "build", "-t", s.Image}
	if s.DockerFile != "" {
		args = append(args, "-f", s.DockerFile)
	}
	return append(args, s.SourceDir)
}

// BuildFailedError is returned when the image build fails for good.
type BuildFailedError struct {
	Result *runner.Result
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("docker build failed with exit code %d", e.Result.ExitCode)
}

func (e *BuildFailedError) Unwrap() error {
	return e.Result.Failed()
}

// Builder builds container images with the docker CLI. Builds that fail on
// registry rate limiting are retried every second until the timeout budget
// is used up.
type Builder struct {
	Runner  runner.Runner
	Timeout time.Duration

	// Now and Sleep default to the monotonic wall clock and a context aware
	// timer.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewBuilder(r runner.Runner, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = DefaultRateLimitTimeout
	}
	return &Builder{
		Runner:  r,
		Timeout: timeout,
		Now:     time.Now,
		Sleep:   sdk.Sleep,
	}
}

func (b *Builder) Build(ctx context.Context, spec BuildSpec) error {
	if spec.Image == "" {
		return fmt.Errorf("image name is required")
	}
	if spec.SourceDir == "" {
		spec.SourceDir = "."
	}

	now := b.Now
	if now == nil {
		now = time.Now
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = sdk.Sleep
	}

	start := now()
	args := spec.args()

	for attempt := 1; ; attempt++ {
		res, err := b.Runner.Run(ctx, runner.Invocation{Args: args})
		if err != nil {
			return fmt.Errorf("unable to run docker build: %w", err)
		}

		if res.ExitCode == 0 {
			return nil
		}

		// Sub uses the monotonic reading carried by time.Now values.
		if IsRateLimited(res) && now().Sub(start) < b.Timeout-time.Second {
			log.Warn().Int("attempt", attempt).Str("image", spec.Image).Msg("got 'too many requests' error, will retry")
			if err := sleep(ctx, rateLimitRetryDelay); err != nil {
				return err
			}
			continue
		}

		return &BuildFailedError{Result: res}
	}
}
