package runner

import (
	"context"
	"io"
	"sync"
)

// Fake is a Runner double that records every invocation and answers with
// Handler. When Handler is nil every command succeeds with empty output.
type Fake struct {
	Handler func(inv Invocation) (*Result, error)

	mu    sync.Mutex
	calls []Invocation
	stdin []string
}

func (f *Fake) Run(_ context.Context, inv Invocation) (*Result, error) {
	var in string
	if inv.Stdin != nil {
		b, err := io.ReadAll(inv.Stdin)
		if err != nil {
			return nil, err
		}
		in = string(b)
	}

	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.stdin = append(f.stdin, in)
	f.mu.Unlock()

	if f.Handler == nil {
		return &Result{Args: inv.Args}, nil
	}

	res, err := f.Handler(inv)
	if res != nil && res.Args == nil {
		res.Args = inv.Args
	}
	return res, err
}

// Calls returns the recorded invocations in order.
func (f *Fake) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Invocation(nil), f.calls...)
}

// Stdin returns what was piped into the i-th invocation.
func (f *Fake) Stdin(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.stdin[i]
}
