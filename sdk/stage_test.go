package sdk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Order(t *testing.T) {
	assert.True(t, LocalStage < DockerStage)
	assert.True(t, DockerStage < DevStage)
	assert.True(t, DevStage < ProdStage)
}

func TestParseStage(t *testing.T) {
	cases := map[string]Stage{
		"local":         LocalStage,
		"docker":        DockerStage,
		"containerized": DockerStage,
		"dev":           DevStage,
		" Prod ":        ProdStage,
		"production":    ProdStage,
	}
	for name, want := range cases {
		got, err := ParseStage(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseStage("staging")
	assert.True(t, errors.Is(err, ErrInvalidStage))
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "dev", DevStage.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
	assert.False(t, Stage(0).Valid())
	assert.True(t, ProdStage.Remote())
	assert.False(t, DockerStage.Remote())
}
