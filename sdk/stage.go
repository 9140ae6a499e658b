package sdk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidStage is returned for stage names or values outside the known set.
var ErrInvalidStage = errors.New("invalid stage")

// Stage is how far along the pipeline a build has progressed.
type Stage int

const (
	LocalStage Stage = iota + 1
	DockerStage
	DevStage
	ProdStage
)

var stageNames = map[Stage]string{
	LocalStage:  "local",
	DockerStage: "docker",
	DevStage:    "dev",
	ProdStage:   "prod",
}

func (s Stage) String() string {
	if n, fnd := stageNames[s]; fnd {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) Valid() bool {
	_, fnd := stageNames[s]
	return fnd
}

// Remote reports whether the stage lives in the cloud, meaning it has a
// registry tag and a function of its own.
func (s Stage) Remote() bool {
	return s == DevStage || s == ProdStage
}

func ParseStage(name string) (Stage, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "production":
		return ProdStage, nil
	case "containerized":
		return DockerStage, nil
	}

	for s, sn := range stageNames {
		if sn == n {
			return s, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidStage, name)
}
