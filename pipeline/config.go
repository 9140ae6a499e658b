package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shono-io/funcship/sdk"
)

// ErrInvalidConfig is returned for incomplete or contradicting configuration.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// docker only accepts container names matching [a-zA-Z0-9][a-zA-Z0-9_.-]+
var illegalContainerNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

type Config struct {
	// Image is the name of the locally built image.
	Image string `mapstructure:"image"`

	Registry RegistryConfig `mapstructure:"registry"`

	// Region is derived from the registry host when left empty.
	Region string `mapstructure:"region"`

	SourceDir  string `mapstructure:"source_dir"`
	DockerFile string `mapstructure:"docker_file"`

	Functions FunctionsConfig `mapstructure:"functions"`

	// HeaderPrefix is printed above every section banner.
	HeaderPrefix string `mapstructure:"header_prefix"`

	Container ContainerConfig `mapstructure:"container"`
}

type RegistryConfig struct {
	Host       string `mapstructure:"host"`
	Repository string `mapstructure:"repository"`
	// PruneUntagged deletes untagged images before each function update.
	PruneUntagged bool `mapstructure:"prune_untagged"`
}

type FunctionsConfig struct {
	Dev  string `mapstructure:"dev"`
	Prod string `mapstructure:"prod"`
}

type ContainerConfig struct {
	// Enabled runs the built image while the docker stage is tested.
	Enabled  bool   `mapstructure:"enabled"`
	Name     string `mapstructure:"name"`
	HostPort int    `mapstructure:"host_port"`
	Port     int    `mapstructure:"port"`
}

// Normalize validates the configuration and fills in derived values.
func (c Config) Normalize() (Config, error) {
	c.Image = strings.TrimSpace(c.Image)
	c.Registry.Host = strings.TrimSpace(c.Registry.Host)
	c.Registry.Repository = strings.TrimSpace(c.Registry.Repository)

	if c.Image == "" {
		return Config{}, fmt.Errorf("%w: image is required", ErrInvalidConfig)
	}
	if c.Registry.Host == "" {
		return Config{}, fmt.Errorf("%w: registry host is required", ErrInvalidConfig)
	}
	if c.Registry.Repository == "" {
		return Config{}, fmt.Errorf("%w: registry repository is required", ErrInvalidConfig)
	}

	if _, err := sdk.ParseImageRef(c.Registry.Host + "/" + c.Registry.Repository); err != nil {
		return Config{}, err
	}

	if c.Region == "" {
		region, err := sdk.RegionFromHost(c.Registry.Host)
		if err != nil {
			return Config{}, err
		}
		c.Region = region
	}

	if c.SourceDir == "" {
		c.SourceDir = "."
	}
	if c.DockerFile == "" {
		c.DockerFile = filepath.Join(c.SourceDir, "Dockerfile")
	}

	if c.Container.Name == "" {
		c.Container.Name = defaultContainerName(c.Image)
	}
	if (c.Container.HostPort == 0) != (c.Container.Port == 0) {
		return Config{}, fmt.Errorf("%w: both or none of container host_port and port must be set", ErrInvalidConfig)
	}

	return c, nil
}

// ImageRef returns the registry reference a stage's image is pushed to.
func (c Config) ImageRef(stage sdk.Stage) (sdk.ImageRef, error) {
	if !stage.Remote() {
		return sdk.ImageRef{}, fmt.Errorf("%w: %s has no registry image", sdk.ErrInvalidStage, stage)
	}
	return sdk.NewImageRef(c.Registry.Host, c.Registry.Repository, stage.String())
}

// RepositoryRef returns the untagged registry reference.
func (c Config) RepositoryRef() (sdk.ImageRef, error) {
	return sdk.NewImageRef(c.Registry.Host, c.Registry.Repository, "")
}

// FunctionName returns the name of the function serving a stage.
func (c Config) FunctionName(stage sdk.Stage) (string, error) {
	var name string
	switch stage {
	case sdk.DevStage:
		name = c.Functions.Dev
	case sdk.ProdStage:
		name = c.Functions.Prod
	default:
		return "", fmt.Errorf("%w: %s has no function", sdk.ErrInvalidStage, stage)
	}

	if name == "" {
		return "", fmt.Errorf("%w: no function configured for %s", ErrInvalidConfig, stage)
	}
	return name, nil
}

// defaultContainerName derives the test container name from the last path
// element of the image, without tag or digest.
func defaultContainerName(image string) string {
	name := image
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}

	name = illegalContainerNameChars.ReplaceAllString(name, "-")
	name = strings.TrimLeft(name, "_.-")
	if name == "" {
		name = "funcship"
	}
	return name + "-test"
}
