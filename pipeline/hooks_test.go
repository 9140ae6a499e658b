package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shono-io/funcship/runner"
	"github.com/shono-io/funcship/sdk"
)

func TestHooksFallBackToNotImplemented(t *testing.T) {
	called := false
	h := Hooks{Dev: func(context.Context, Target) error {
		called = true
		return nil
	}}

	require.NoError(t, h.get(sdk.DevStage)(context.Background(), Target{Stage: sdk.DevStage}))
	assert.True(t, called)

	assert.NoError(t, h.get(sdk.ProdStage)(context.Background(), Target{Stage: sdk.ProdStage}))
	assert.NoError(t, h.get(sdk.DockerStage)(context.Background(), Target{Stage: sdk.DockerStage}))
}

func TestCommandHookWithoutArgsIsNil(t *testing.T) {
	assert.Nil(t, CommandHook(&runner.Fake{}, nil))
}

func TestCommandHookPassesTarget(t *testing.T) {
	fake := &runner.Fake{}
	hook := CommandHook(fake, []string{"./smoke.sh", "--fast"})

	err := hook(context.Background(), Target{Stage: sdk.DevStage, Image: devRef, Function: "abc-dev"})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"./smoke.sh", "--fast"}, calls[0].Args)
	assert.Equal(t, map[string]string{
		"FUNCSHIP_STAGE":    "dev",
		"FUNCSHIP_IMAGE":    devRef,
		"FUNCSHIP_FUNCTION": "abc-dev",
	}, calls[0].Env)
}

func TestCommandHookFailsOnNonZeroExit(t *testing.T) {
	fake := &runner.Fake{Handler: func(inv runner.Invocation) (*runner.Result, error) {
		return &runner.Result{ExitCode: 3, Output: "FAIL"}, nil
	}}

	err := CommandHook(fake, []string{"./smoke.sh"})(context.Background(), Target{Stage: sdk.ProdStage})

	var failed *runner.CommandFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 3, failed.ExitCode)
}
