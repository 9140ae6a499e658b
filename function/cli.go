package function

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shono-io/funcship/runner"
	"github.com/shono-io/funcship/sdk"
)

// CLIClient drives the aws CLI.
type CLIClient struct {
	Runner runner.Runner
}

type cliStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (c *CLIClient) Status(ctx context.Context, region, name string) (Status, error) {
	res, err := runner.Check(ctx, c.Runner, runner.Invocation{
		Args: []string{
			"aws", "lambda", "get-function-configuration",
			"--region", region,
			"--function-name", name,
			"--query", "{status: LastUpdateStatus, reason: LastUpdateStatusReason}",
			"--output", "json",
		},
		Quiet: true,
	})
	if err != nil {
		return Status{}, err
	}

	var st cliStatus
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Output)), &st); err != nil {
		return Status{}, fmt.Errorf("unable to parse function configuration: %w", err)
	}

	return Status{Status: ParseUpdateStatus(st.Status), Reason: st.Reason}, nil
}

func (c *CLIClient) UpdateCode(ctx context.Context, region, name string, image sdk.ImageRef) error {
	_, err := runner.Check(ctx, c.Runner, runner.Invocation{
		Args: []string{
			"aws", "lambda", "update-function-code",
			"--region", region,
			"--function-name", name,
			"--image-uri", image.String(),
		},
	})
	return err
}
