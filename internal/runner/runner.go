// Package runner executes child processes for the management CLI and the
// test launcher. Callers describe an invocation as a Spec; the fake
// implementation lets them be tested without spawning real binaries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// Spec describes one child process invocation. Env entries are layered on
// top of the parent environment; later entries win on duplicate keys.
type Spec struct {
	Binary string
	Args   []string
	Env    map[string]string
	Dir    string
}

// CommandRunner runs a child process to completion and reports its exit
// code. The error return covers failures to start the process at all; a
// non-zero child exit is not an error.
type CommandRunner interface {
	Run(ctx context.Context, spec Spec) (int, error)
}

// ExecRunner runs processes with stdout and stderr inherited from the
// parent.
type ExecRunner struct{}

var _ CommandRunner = &ExecRunner{}

func (e *ExecRunner) Run(ctx context.Context, spec Spec) (int, error) {
	if spec.Binary == "" {
		return 0, errors.New("binary path is empty")
	}
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) // #nosec G204 -- invocations are assembled from fixed argument lists
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	env := os.Environ()
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}
	cmd.Env = env

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("run %s: %w", spec.Binary, err)
}

// FakeRunner records invocations and returns scripted results. When Codes
// is non-empty the entries are consumed call by call, then ExitCode applies.
type FakeRunner struct {
	ExitCode int
	Codes    []int
	Err      error
	Calls    []Spec
}

var _ CommandRunner = &FakeRunner{}

func (f *FakeRunner) Run(ctx context.Context, spec Spec) (int, error) {
	f.Calls = append(f.Calls, spec)
	if f.Err != nil {
		return 0, f.Err
	}
	if n := len(f.Calls) - 1; n < len(f.Codes) {
		return f.Codes[n], nil
	}
	return f.ExitCode, nil
}
