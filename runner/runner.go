// Package runner starts external programs, echoes their combined output to
// the operator as it arrives and hands the captured text back to the caller.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

type (
	// Invocation describes a single external command.
	Invocation struct {
		Args  []string
		Stdin io.Reader
		// Env entries are added on top of the calling process environment.
		Env map[string]string
		Dir string
		// Quiet disables the live echo. The output is still captured.
		Quiet bool
	}

	// Result is what a finished command leaves behind. Output holds stdout and
	// stderr merged in the order the process wrote them.
	Result struct {
		Args     []string
		ExitCode int
		Output   string
	}

	Runner interface {
		// Run starts the command and waits for it. A non-zero exit code is not
		// an error; errors are reserved for commands that could not be started
		// or were cancelled.
		Run(ctx context.Context, inv Invocation) (*Result, error)
	}
)

// CommandFailedError is returned by Check when the command exits non-zero.
type CommandFailedError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
}

// Failed converts a finished result into a CommandFailedError.
func (r *Result) Failed() *CommandFailedError {
	return &CommandFailedError{
		Args:     r.Args,
		ExitCode: r.ExitCode,
		Output:   r.Output,
	}
}

// Check runs the invocation and fails with a *CommandFailedError on a non-zero
// exit code.
func Check(ctx context.Context, r Runner, inv Invocation) (*Result, error) {
	res, err := r.Run(ctx, inv)
	if err != nil {
		return nil, err
	}

	if res.ExitCode != 0 {
		return res, res.Failed()
	}

	return res, nil
}

// Local runs commands on the current machine.
type Local struct {
	mu  sync.Mutex
	out io.Writer
}

func NewLocal() *Local {
	return &Local{out: os.Stdout}
}

// NewLocalWithOutput creates a runner echoing to w instead of stdout.
func NewLocalWithOutput(w io.Writer) *Local {
	return &Local{out: w}
}

func (l *Local) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if len(inv.Args) == 0 {
		return nil, errors.New("no command given")
	}

	log.Debug().Strs("args", inv.Args).Msg("running command")

	cmd := osexec.CommandContext(ctx, inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdin = inv.Stdin
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(inv.Env)...)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("unable to create output pipe: %w", err)
	}
	defer pr.Close()

	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("unable to start %q: %w", inv.Args[0], err)
	}
	// -- the child holds its own copy of the write end
	pw.Close()

	var sb strings.Builder
	rd := bufio.NewReader(pr)
	for {
		line, rerr := rd.ReadString('\n')
		if len(line) > 0 {
			line = strings.ToValidUTF8(line, "�")
			sb.WriteString(line)
			if !inv.Quiet {
				l.echo(line)
			}
		}
		if rerr != nil {
			break
		}
	}

	werr := cmd.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("command %q cancelled: %w", inv.Args[0], ctx.Err())
	}

	var exitErr *osexec.ExitError
	if werr != nil && !errors.As(werr, &exitErr) {
		return nil, fmt.Errorf("unable to wait for %q: %w", inv.Args[0], werr)
	}

	return &Result{
		Args:     inv.Args,
		ExitCode: cmd.ProcessState.ExitCode(),
		Output:   sb.String(),
	}, nil
}

func (l *Local) echo(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}
	_, _ = io.WriteString(l.out, line)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}
