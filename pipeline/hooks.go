package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/runner"
	"github.com/shono-io/funcship/sdk"
)

type (
	// Target tells a hook what it is testing. Image and Function are empty
	// for stages that do not have them.
	Target struct {
		Stage    sdk.Stage
		Image    string
		Function string
	}

	// Hook tests a stage. A returned error fails the stage.
	Hook func(ctx context.Context, t Target) error

	Hooks struct {
		Docker Hook
		Dev    Hook
		Prod   Hook
	}
)

func (h Hooks) get(stage sdk.Stage) Hook {
	var hook Hook
	switch stage {
	case sdk.DockerStage:
		hook = h.Docker
	case sdk.DevStage:
		hook = h.Dev
	case sdk.ProdStage:
		hook = h.Prod
	}

	if hook == nil {
		return NotImplemented
	}
	return hook
}

// NotImplemented is the hook used for stages nobody wrote tests for.
func NotImplemented(_ context.Context, t Target) error {
	log.Warn().Str("stage", t.Stage.String()).Msgf("not testing %s, no test hook configured", t.Stage)
	return nil
}

// CommandHook runs an external command as the hook. The target is passed in
// the FUNCSHIP_STAGE, FUNCSHIP_IMAGE and FUNCSHIP_FUNCTION environment
// variables.
func CommandHook(r runner.Runner, args []string) Hook {
	if len(args) == 0 {
		return nil
	}

	return func(ctx context.Context, t Target) error {
		_, err := runner.Check(ctx, r, runner.Invocation{
			Args: args,
			Env: map[string]string{
				"FUNCSHIP_STAGE":    t.Stage.String(),
				"FUNCSHIP_IMAGE":    t.Image,
				"FUNCSHIP_FUNCTION": t.Function,
			},
		})
		return err
	}
}
