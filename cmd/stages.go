package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shono-io/funcship/pipeline"
	"github.com/shono-io/funcship/sdk"
)

type stageCommand struct {
	name  string
	short string
	run   func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error
}

var stageCommands = []stageCommand{
	{"build", "build the docker image", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.Build(ctx)
	}},
	{"build-docker", "build the docker image and test it locally", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.BuildDocker(ctx)
	}},
	{"build-dev", "build, deploy and test the dev function", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.BuildDev(ctx)
	}},
	{"build-prod", "build, deploy and test dev, then prod", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.BuildProd(ctx)
	}},
	{"deploy-dev", "push the built image and update the dev function", deploy(sdk.DevStage)},
	{"deploy-prod", "push the built image and update the prod function", deploy(sdk.ProdStage)},
	{"wait-dev", "wait for the dev function to settle", wait(sdk.DevStage)},
	{"wait-prod", "wait for the prod function to settle", wait(sdk.ProdStage)},
	{"test-docker", "run the containerized tests", test(sdk.DockerStage)},
	{"test-dev", "run the tests against the dev function", test(sdk.DevStage)},
	{"test-prod", "run the tests against the prod function", test(sdk.ProdStage)},
	{"cleanup-untagged", "delete untagged images from the repository", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.CleanupUntagged(ctx)
	}},
	{"delete-all-images", "delete every image from the repository", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.DeleteAllImages(ctx)
	}},
	{"run", "run the built image as a local container", func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		e, err := p.RunContainer(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Started container %s (%s)\n", e.Name, e.Id)
		return nil
	}},
	{"stop", "stop the local container", func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.StopContainer(ctx)
	}},
	{"history-dev", "list the recorded dev deployments", history(sdk.DevStage)},
	{"history-prod", "list the recorded prod deployments", history(sdk.ProdStage)},
}

func deploy(stage sdk.Stage) func(context.Context, *pipeline.Pipeline, io.Writer) error {
	return func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.Deploy(ctx, stage)
	}
}

func wait(stage sdk.Stage) func(context.Context, *pipeline.Pipeline, io.Writer) error {
	return func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.Wait(ctx, stage)
	}
}

func test(stage sdk.Stage) func(context.Context, *pipeline.Pipeline, io.Writer) error {
	return func(ctx context.Context, p *pipeline.Pipeline, _ io.Writer) error {
		return p.Test(ctx, stage)
	}
}

func history(stage sdk.Stage) func(context.Context, *pipeline.Pipeline, io.Writer) error {
	return func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		ds, err := p.History(ctx, stage)
		if err != nil {
			return err
		}
		if len(ds) == 0 {
			fmt.Fprintf(out, "No deployments recorded for %s\n", stage)
			return nil
		}
		for _, d := range ds {
			fmt.Fprintf(out, "%s  %-20s  %s\n", d.Time.Format(time.RFC3339), d.Function, d.Image)
		}
		return nil
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s takes no arguments", errUsage, cmd.Name())
	}
	return nil
}

func addStageCommands(root *cobra.Command) {
	for _, sc := range stageCommands {
		root.AddCommand(newStageCmd(sc))
	}
}

func newStageCmd(sc stageCommand) *cobra.Command {
	c := &cobra.Command{
		Use:   sc.name,
		Short: sc.short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(viper.GetViper())
			if err != nil {
				return err
			}

			p, closer, err := newPipeline(cmd.Context(), s, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closer()

			return sc.run(cmd.Context(), p, cmd.OutOrStdout())
		},
	}

	if alias := strings.ReplaceAll(sc.name, "-", "_"); alias != sc.name {
		c.Aliases = []string{alias}
	}
	return c
}
