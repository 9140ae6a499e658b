package exec

import (
	"context"
	"fmt"
)

type (
	Config struct {
		FromEnv bool
		Url     string
	}

	// Executor runs a locally built image as a container, which is how the
	// containerized stage gets tested before anything is pushed.
	Executor interface {
		Run(ctx context.Context, spec RunSpec) (*Execution, error)
		Stop(ctx context.Context, name string) error
		Close() error
	}

	RunSpec struct {
		Image string
		Name  string
		// HostPort and ContainerPort must be given together. Zero means no
		// port mapping.
		HostPort      int
		ContainerPort int
	}

	Execution struct {
		Id     string
		Name   string
		Image  string
		Status ExecutionState
	}

	ExecutionState string
)

const (
	PresentState ExecutionState = "present"
	StartedState ExecutionState = "started"
	StoppedState ExecutionState = "stopped"
	AbsentState  ExecutionState = "absent"
)

func (s RunSpec) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("image is required")
	}
	if (s.HostPort == 0) != (s.ContainerPort == 0) {
		return fmt.Errorf("both or none of host port and container port must be specified")
	}
	if s.HostPort < 0 || s.ContainerPort < 0 {
		return fmt.Errorf("ports must be positive")
	}
	return nil
}
