package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shono-io/funcship/runner"
)

func TestCLICleaner_DeleteUntagged(t *testing.T) {
	f := &runner.Fake{Handler: func(inv runner.Invocation) (*runner.Result, error) {
		if inv.Args[2] == "list-images" {
			return &runner.Result{Output: `[{"imageDigest": "sha256:aaa"}, {"imageDigest": "sha256:bbb"}]` + "\n"}, nil
		}
		return &runner.Result{}, nil
	}}
	c := &CLICleaner{Runner: f}

	n, err := c.DeleteUntagged(context.Background(), devRef(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	calls := f.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{
		"aws", "ecr", "list-images",
		"--region", "us-east-1",
		"--repository-name", "abc_x1",
		"--filter", "tagStatus=UNTAGGED",
		"--query", "imageIds[*]",
		"--output", "json",
	}, calls[0].Args)

	del := calls[1].Args
	assert.Equal(t, []string{"aws", "ecr", "batch-delete-image", "--region", "us-east-1", "--repository-name", "abc_x1", "--image-ids"}, del[:8])

	var ids []ImageID
	require.NoError(t, json.Unmarshal([]byte(del[8]), &ids))
	assert.Equal(t, []ImageID{{ImageDigest: "sha256:aaa"}, {ImageDigest: "sha256:bbb"}}, ids)
}

func TestCLICleaner_NothingToDelete(t *testing.T) {
	f := &runner.Fake{Handler: func(inv runner.Invocation) (*runner.Result, error) {
		return &runner.Result{Output: "[]\n"}, nil
	}}
	c := &CLICleaner{Runner: f}

	n, err := c.DeleteAll(context.Background(), devRef(t))
	require.NoError(t, err)
	assert.Zero(t, n)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Args, "--filter")
}

func TestCLICleaner_BadListOutput(t *testing.T) {
	f := &runner.Fake{Handler: func(inv runner.Invocation) (*runner.Result, error) {
		return &runner.Result{Output: "not json"}, nil
	}}
	c := &CLICleaner{Runner: f}

	_, err := c.DeleteUntagged(context.Background(), devRef(t))
	assert.Error(t, err)
}

func TestChunks(t *testing.T) {
	ids := make([]ImageID, 201)
	got := chunks(ids)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 100)
	assert.Len(t, got[2], 1)
	assert.Empty(t, chunks(nil))
}
