// Package launcher implements the runtests command: it picks the test
// suites to run, prepares the environment overlay for them and delegates to
// the management CLI's test command. The delegated process owns the run;
// the launcher only reports its exit code.
package launcher

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/runner"
)

const (
	version       = "0.0.1"
	defaultBinary = "frescoctl"

	// EnvFrescoctlBin overrides the management binary the launcher invokes.
	EnvFrescoctlBin = "FRESCOCTL_BIN"
	// EnvReuseDB tells the integration suite to keep the existing schema.
	EnvReuseDB = "REUSE_DB"
	// EnvTravisBranch is the branch under test in CI runs.
	EnvTravisBranch = "TRAVIS_BRANCH"

	integrationBranch = "master"
)

// ErrBranchUnset is returned when --travis runs in an environment that does
// not export TRAVIS_BRANCH.
var ErrBranchUnset = errors.New("TRAVIS_BRANCH is not set")

// Option lists forwarded to the test command, in fixed order: the suite
// path first, then any per-suite extras.
var (
	unitOptions        = []string{"tests/unit", "--with-doctest", "internal/engine", "internal/store", "internal/cache"}
	integrationOptions = []string{"tests/integration"}
)

// Flags holds the parsed command line.
type Flags struct {
	Travis      bool
	All         bool
	Unit        bool
	Integration bool
}

// Resolution is the launcher's plan: which suites run and the environment
// overlay applied to the delegated process. The launcher never mutates its
// own environment.
type Resolution struct {
	Unit        bool
	Integration bool
	Env         map[string]string
}

// Resolve turns parsed flags and the process environment into a run plan.
// --travis selects suites for CI: the unit suite always, the integration
// suite only on the integration branch, and database reuse unless the
// caller configured it already. --all forces both suites.
func Resolve(f Flags) (Resolution, error) {
	res := Resolution{Unit: f.Unit, Integration: f.Integration, Env: map[string]string{}}
	if f.Travis {
		if _, ok := os.LookupEnv(EnvReuseDB); !ok {
			res.Env[EnvReuseDB] = "1"
		}
		branch, ok := os.LookupEnv(EnvTravisBranch)
		if !ok {
			return Resolution{}, ErrBranchUnset
		}
		if branch == integrationBranch {
			res.Integration = true
		}
		res.Unit = true
	}
	if f.All {
		res.Unit = true
		res.Integration = true
	}
	switch {
	case res.Unit && res.Integration:
		res.Env[config.EnvSettingsModule] = string(config.ProfileCombined)
	case res.Unit:
		res.Env[config.EnvSettingsModule] = string(config.ProfileUnit)
	case res.Integration:
		res.Env[config.EnvSettingsModule] = string(config.ProfileIntegration)
	}
	return res, nil
}

// Options returns the option list forwarded to the test command. Unit
// options come before integration options; an empty plan yields an empty
// list.
func (r Resolution) Options() []string {
	var opts []string
	if r.Unit {
		opts = append(opts, unitOptions...)
	}
	if r.Integration {
		opts = append(opts, integrationOptions...)
	}
	return opts
}

// Delegate invokes the management CLI's test command with the resolved
// options and environment overlay. The child's exit code is returned
// unchanged.
func Delegate(ctx context.Context, r runner.CommandRunner, res Resolution) (int, error) {
	bin := os.Getenv(EnvFrescoctlBin)
	if bin == "" {
		bin = defaultBinary
	}
	args := append([]string{"test", "--verbosity=2", "--with-id"}, res.Options()...)
	return r.Run(ctx, runner.Spec{Binary: bin, Args: args, Env: res.Env})
}

// Run parses args and executes the launcher against the given runner. The
// return value is the process exit code: 0 for --help and --version, 2 for
// unparsable flags, 1 for launcher errors, otherwise the delegated
// command's exit code.
func Run(args []string, r runner.CommandRunner, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("runtests", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f Flags
	fs.BoolVar(&f.Travis, "travis", false, "configure the run for CI: reuse the database and pick suites by branch")
	fs.BoolVar(&f.All, "all", false, "run the unit and the integration suites")
	fs.BoolVar(&f.Unit, "unit", false, "run the unit suite")
	fs.BoolVar(&f.Integration, "integration", false, "run the integration suite")
	showVersion := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "runtests "+version)
		return 0
	}
	res, err := Resolve(f)
	if err != nil {
		fmt.Fprintln(stderr, "runtests:", err)
		return 1
	}
	code, err := Delegate(context.Background(), r, res)
	if err != nil {
		fmt.Fprintln(stderr, "runtests:", err)
		return 1
	}
	return code
}

// Main is the entry point used by cmd/runtests.
func Main(args []string) int {
	return Run(args, &runner.ExecRunner{}, os.Stdout, os.Stderr)
}
