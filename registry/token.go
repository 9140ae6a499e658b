package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"github.com/shono-io/funcship/runner"
)

// TokenSource hands out the password docker needs to log into a registry.
type TokenSource interface {
	Token(ctx context.Context, region string) (string, error)
}

// CLITokenSource asks `aws ecr get-login-password` for the token. The
// command output is never echoed.
type CLITokenSource struct {
	Runner runner.Runner
}

func (s *CLITokenSource) Token(ctx context.Context, region string) (string, error) {
	res, err := runner.Check(ctx, s.Runner, runner.Invocation{
		Args:  []string{"aws", "ecr", "get-login-password", "--region", region},
		Quiet: true,
	})
	if err != nil {
		return "", fmt.Errorf("unable to get registry login password: %w", err)
	}

	token := strings.TrimSpace(res.Output)
	if token == "" {
		return "", errors.New("registry login password is empty")
	}
	return token, nil
}

// ECRAuthAPI is the ECR operation used by ECRTokenSource.
type ECRAuthAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// ECRTokenSource fetches the token with the AWS SDK. Clients are created per
// region by NewClient.
type ECRTokenSource struct {
	NewClient func(ctx context.Context, region string) (ECRAuthAPI, error)
}

func (s *ECRTokenSource) Token(ctx context.Context, region string) (string, error) {
	c, err := s.NewClient(ctx, region)
	if err != nil {
		return "", err
	}

	out, err := c.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", fmt.Errorf("ecr: get authorization token: %w", err)
	}

	for _, ad := range out.AuthorizationData {
		if ad.AuthorizationToken == nil {
			continue
		}
		return passwordFromAuth(*ad.AuthorizationToken)
	}

	return "", errors.New("ecr: no authorization data returned")
}

// passwordFromAuth decodes the base64 "AWS:password" pair ECR hands out.
func passwordFromAuth(auth string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(auth)
	if err != nil {
		return "", fmt.Errorf("ecr: unable to decode authorization token: %w", err)
	}

	user, password, fnd := strings.Cut(strings.TrimSpace(string(decoded)), ":")
	if !fnd || user == "" || password == "" {
		return "", errors.New("ecr: malformed authorization token")
	}
	return password, nil
}
