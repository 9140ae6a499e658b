// Package credentials writes the shared AWS credentials file, which is
// mostly useful on CI runners that start without one.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// ErrExists is returned when the credentials file is present and may not be
// overwritten.
var ErrExists = errors.New("credentials file already exists")

// DefaultPath returns ~/.aws/credentials.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to find home directory: %w", err)
	}
	return filepath.Join(home, ".aws", "credentials"), nil
}

type Options struct {
	// Path defaults to DefaultPath.
	Path      string
	Overwrite bool
}

// Create writes a credentials file holding a single [default] profile and
// returns its path.
func Create(accessKeyID, secretAccessKey string, opts Options) (string, error) {
	if accessKeyID == "" || secretAccessKey == "" {
		return "", errors.New("access key id and secret access key are required")
	}

	path := opts.Path
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	cfg := ini.Empty()
	sec, err := cfg.NewSection("default")
	if err != nil {
		return "", err
	}
	if _, err := sec.NewKey("aws_access_key_id", accessKeyID); err != nil {
		return "", err
	}
	if _, err := sec.NewKey("aws_secret_access_key", secretAccessKey); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("unable to create credentials directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
		return "", fmt.Errorf("unable to open credentials file: %w", err)
	}
	defer f.Close()

	if _, err := cfg.WriteTo(f); err != nil {
		return "", fmt.Errorf("unable to write credentials file: %w", err)
	}

	return path, f.Close()
}

// CreateOnNeed creates the default credentials file unless it exists already.
// The keys are only required when the file has to be created.
func CreateOnNeed(accessKeyID, secretAccessKey string) (string, error) {
	path, err := DefaultPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if accessKeyID == "" {
		return "", errors.New("no credentials file and no access key id given")
	}
	if secretAccessKey == "" {
		return "", errors.New("no credentials file and no secret access key given")
	}

	return Create(accessKeyID, secretAccessKey, Options{Path: path})
}
