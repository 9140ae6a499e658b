// Package function updates a container image function and waits for the
// update to be applied.
//
// The remote function accepts only one code update at a time: a second
// update while the first is still being applied fails with "the operation
// cannot be performed at this time". Awaiter.Update therefore waits for the
// function to settle before and after each update.
package function

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/sdk"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

// ErrWaitTimeout is returned when the function did not settle within the
// allowed number of polls.
var ErrWaitTimeout = errors.New("timed out waiting for function update")

// WaitAbortedError is returned when the function reports that its last update
// failed.
type WaitAbortedError struct {
	Function string
	Reason   string
}

func (e *WaitAbortedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("update of function %s failed", e.Function)
	}
	return fmt.Sprintf("update of function %s failed: %s", e.Function, e.Reason)
}

type UpdateStatus string

const (
	StatusSuccessful UpdateStatus = "Successful"
	StatusInProgress UpdateStatus = "InProgress"
	StatusFailed     UpdateStatus = "Failed"
	StatusUnknown    UpdateStatus = "Unknown"
)

// ParseUpdateStatus maps the remote LastUpdateStatus onto the known values.
func ParseUpdateStatus(s string) UpdateStatus {
	switch UpdateStatus(s) {
	case StatusSuccessful, StatusInProgress, StatusFailed:
		return UpdateStatus(s)
	default:
		return StatusUnknown
	}
}

type (
	Status struct {
		Status UpdateStatus
		Reason string
	}

	// Client talks to the function service.
	Client interface {
		Status(ctx context.Context, region, name string) (Status, error)
		UpdateCode(ctx context.Context, region, name string, image sdk.ImageRef) error
	}
)

type Awaiter struct {
	Client      Client
	Region      string
	Interval    time.Duration
	MaxAttempts int

	Sleep func(ctx context.Context, d time.Duration) error
}

func NewAwaiter(c Client, region string) *Awaiter {
	return &Awaiter{
		Client:      c,
		Region:      region,
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxAttempts,
		Sleep:       sdk.Sleep,
	}
}

// AwaitStable polls the function until its last update is successful.
func (a *Awaiter) AwaitStable(ctx context.Context, name string) error {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	wait := a.Sleep
	if wait == nil {
		wait = sdk.Sleep
	}

	log.Info().Str("function", name).Str("region", a.Region).Msg("waiting for successful update status")

	for attempt := 1; attempt <= attempts; attempt++ {
		st, err := a.Client.Status(ctx, a.Region, name)
		if err != nil {
			return fmt.Errorf("unable to get update status of %s: %w", name, err)
		}

		switch st.Status {
		case StatusSuccessful:
			return nil
		case StatusFailed:
			return &WaitAbortedError{Function: name, Reason: st.Reason}
		}

		log.Debug().Str("function", name).Str("status", string(st.Status)).Int("attempt", attempt).Msg("function not settled yet")

		if attempt < attempts {
			if err := wait(ctx, a.Interval); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrWaitTimeout, name, attempts)
}

// Update points the function at image. It never issues an update while a
// previous one is still being applied, and returns only once the new code is
// live.
func (a *Awaiter) Update(ctx context.Context, name string, image sdk.ImageRef) error {
	log.Info().Str("function", name).Str("region", a.Region).Str("image", image.String()).Msg("updating function")

	if err := a.AwaitStable(ctx, name); err != nil {
		return err
	}

	if err := a.Client.UpdateCode(ctx, a.Region, name, image); err != nil {
		return fmt.Errorf("unable to update function %s: %w", name, err)
	}

	if err := a.AwaitStable(ctx, name); err != nil {
		return err
	}

	log.Info().Str("function", name).Msg("function updated")
	return nil
}
