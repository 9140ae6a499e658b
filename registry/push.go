// Package registry pushes locally built images to an ECR repository and keeps
// the repository tidy.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/runner"
	"github.com/shono-io/funcship/sdk"
)

// ErrDigestNotFound means docker push succeeded but printed no digest, which
// points at a change in the docker output format rather than a failed push.
var ErrDigestNotFound = errors.New("no digest found in push output")

var digestPattern = regexp.MustCompile(`digest: (sha256:[0-9a-z]+)`)

// PushFailedError is returned when docker push exits non-zero.
type PushFailedError struct {
	Result *runner.Result
}

func (e *PushFailedError) Error() string {
	return fmt.Sprintf("docker push exited with code %d", e.Result.ExitCode)
}

func (e *PushFailedError) Unwrap() error {
	return e.Result.Failed()
}

// ExtractDigest finds the content digest in docker push output.
func ExtractDigest(output string) (digest.Digest, error) {
	m := digestPattern.FindStringSubmatch(output)
	if m == nil {
		return "", ErrDigestNotFound
	}
	return digest.Digest(m[1]), nil
}

type Pusher struct {
	Runner runner.Runner
	Tokens TokenSource
}

func NewPusher(r runner.Runner, tokens TokenSource) *Pusher {
	return &Pusher{Runner: r, Tokens: tokens}
}

// Push logs into the registry, tags localImage as ref and pushes it. The
// returned reference points at the pushed content by digest.
func (p *Pusher) Push(ctx context.Context, localImage string, ref sdk.ImageRef) (sdk.ImageRef, error) {
	token, err := p.Tokens.Token(ctx, ref.Region)
	if err != nil {
		return sdk.ImageRef{}, err
	}

	if _, err := runner.Check(ctx, p.Runner, runner.Invocation{
		Args:  []string{"docker", "login", "--username", "AWS", "--password-stdin", ref.Host},
		Stdin: strings.NewReader(token),
	}); err != nil {
		return sdk.ImageRef{}, fmt.Errorf("unable to log into %s: %w", ref.Host, err)
	}

	if _, err := runner.Check(ctx, p.Runner, runner.Invocation{
		Args: []string{"docker", "tag", localImage, ref.String()},
	}); err != nil {
		return sdk.ImageRef{}, fmt.Errorf("unable to tag %s: %w", localImage, err)
	}

	res, err := p.Runner.Run(ctx, runner.Invocation{
		Args: []string{"docker", "push", ref.String()},
	})
	if err != nil {
		return sdk.ImageRef{}, fmt.Errorf("unable to run docker push: %w", err)
	}

	if res.ExitCode != 0 {
		log.Error().Int("exit_code", res.ExitCode).Str("image", ref.String()).Msg("push failed, output captured before error follows")
		log.Error().Msg(res.Output)
		return sdk.ImageRef{}, &PushFailedError{Result: res}
	}

	d, err := ExtractDigest(res.Output)
	if err != nil {
		return sdk.ImageRef{}, err
	}

	pushed := ref.WithDigest(d)
	log.Info().Str("image", pushed.String()).Msg("pushed image")
	return pushed, nil
}
