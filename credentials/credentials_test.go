package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aws", "credentials")

	got, err := Create("AKIAEXAMPLE", "secret", Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, got)

	cfg, err := ini.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", cfg.Section("default").Key("aws_access_key_id").String())
	assert.Equal(t, "secret", cfg.Section("default").Key("aws_secret_access_key").String())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestCreate_RefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

	_, err := Create("id", "secret", Options{Path: path})
	assert.True(t, errors.Is(err, ErrExists))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(b))
}

func TestCreate_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte("old content that is long"), 0o600))

	_, err := Create("id", "secret", Options{Path: path, Overwrite: true})
	require.NoError(t, err)

	cfg, err := ini.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.Section("default").Key("aws_access_key_id").String())
}

func TestCreate_RequiresKeys(t *testing.T) {
	_, err := Create("", "secret", Options{Path: filepath.Join(t.TempDir(), "c")})
	assert.Error(t, err)
}

func TestCreateOnNeed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := CreateOnNeed("", "")
	assert.Error(t, err)

	path, err := CreateOnNeed("id", "secret")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".aws", "credentials"), path)

	// existing file wins, keys are not needed any more
	again, err := CreateOnNeed("", "")
	require.NoError(t, err)
	assert.Equal(t, path, again)

	cfg, err := ini.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.Section("default").Key("aws_access_key_id").String())
}
