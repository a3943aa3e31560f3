package toolchain

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vango-dev/spindle/internal/errors"
)

// Command is one external tool invocation.
type Command struct {
	// Name is the executable, looked up in PATH when not absolute.
	Name string

	// Args are the command-line arguments.
	Args []string

	// Dir is the working directory.
	Dir string

	// Env is appended to the current process environment.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes external tools. Adapters never call os/exec directly so
// tests can substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (stdout []byte, err error)
}

// killGrace is how long a cancelled tool gets to exit before it is killed.
const killGrace = 5 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes cmd, returning its stdout. A non-zero exit becomes a
// toolchain error carrying stderr; a missing executable is E201.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace
	group := newProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return nil, errors.New("E201").
				WithDetail(c.Name + " was not found in PATH").
				Wrap(err)
		}
		return nil, errors.New("E200").WithDetail(err.Error()).Wrap(err)
	}
	group.attach()
	err := cmd.Wait()
	group.release()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.New("E200").WithDetail(c.String() + " was cancelled").Wrap(ctxErr)
		}
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		if output == "" {
			output = err.Error()
		}
		return nil, errors.New("E200").WithDetail(output).Wrap(err)
	}
	return stdout.Bytes(), nil
}

// ToolStatus describes one configured executable.
type ToolStatus struct {
	Name  string
	Value string
	Path  string
	Found bool
}

// Lookup resolves each configured tool in PATH.
func Lookup(tools Tools) []ToolStatus {
	entries := []struct{ name, value string }{
		{"go", tools.Go},
		{"sass", tools.Sass},
		{"wasm-opt", tools.WasmOpt},
		{"esbuild", tools.Esbuild},
	}
	out := make([]ToolStatus, 0, len(entries))
	for _, e := range entries {
		st := ToolStatus{Name: e.name, Value: e.value}
		if p, err := exec.LookPath(e.value); err == nil {
			st.Path = p
			st.Found = true
		}
		out = append(out, st)
	}
	return out
}

// asToolchain tags a runner error with the adapter that invoked the tool.
func asToolchain(tool string, err error) error {
	var se *errors.SpindleError
	if stderrors.As(err, &se) {
		if se.Tool == "" {
			se.Tool = tool
		}
		return se
	}
	return errors.Toolchain(tool, err.Error()).Wrap(err)
}
