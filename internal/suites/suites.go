// Package suites maps test suite labels to go test invocations for the
// frescoctl test command. The launcher forwards labels in a fixed order;
// this package turns them into a plan, runs the plan sequentially and
// summarizes the results.
package suites

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/runner"
)

const (
	// LabelUnit selects the fast suite: package tests across internal and
	// pkg, run with -short.
	LabelUnit = "tests/unit"
	// LabelIntegration selects the end-to-end suite under
	// tests/integration, never cached.
	LabelIntegration = "tests/integration"
	// FlagWithDoctest asks for Example-function runs over the source paths
	// that follow it.
	FlagWithDoctest = "--with-doctest"

	// EnvRunID tags every child run of one frescoctl test call.
	EnvRunID = "FRESCO_TEST_RUN_ID"

	goBinary = "go"
)

var (
	green = color.New(color.FgHiGreen).SprintFunc()
	red   = color.New(color.FgHiRed).SprintFunc()
)

// Invocation is one go test run within a plan.
type Invocation struct {
	Name string
	Args []string
}

// Plan is the ordered list of go test runs for one frescoctl test call,
// plus the environment overlay shared by all of them.
type Plan struct {
	Invocations []Invocation
	Env         map[string]string
}

// BuildPlan parses the forwarded option list into a plan. Labels select
// suites; source paths after --with-doctest get an Example-only run. When
// FRESCO_SETTINGS_MODULE is set, the profile must cover every selected
// suite.
func BuildPlan(options []string, verbosity int, withID bool) (Plan, error) {
	var unit, integration, doctest bool
	var doctestPaths []string
	collecting := false
	for _, opt := range options {
		switch {
		case opt == LabelUnit:
			unit = true
			collecting = false
		case opt == LabelIntegration:
			integration = true
			collecting = false
		case opt == FlagWithDoctest:
			doctest = true
			collecting = true
		case strings.HasPrefix(opt, "-"):
			return Plan{}, fmt.Errorf("unknown option %q", opt)
		case collecting:
			doctestPaths = append(doctestPaths, opt)
		default:
			return Plan{}, fmt.Errorf("unknown suite label %q", opt)
		}
	}
	if doctest && len(doctestPaths) == 0 {
		return Plan{}, fmt.Errorf("%s requires at least one source path", FlagWithDoctest)
	}
	if err := checkProfile(unit, integration); err != nil {
		return Plan{}, err
	}

	verbose := verbosity >= 2
	var plan Plan
	if unit {
		plan.Invocations = append(plan.Invocations, Invocation{
			Name: "unit",
			Args: testArgs(verbose, "-short", "./internal/...", "./pkg/..."),
		})
	}
	if doctest {
		args := []string{"-run", "^Example"}
		for _, p := range doctestPaths {
			args = append(args, "./"+strings.TrimPrefix(p, "./"))
		}
		plan.Invocations = append(plan.Invocations, Invocation{
			Name: "doctest",
			Args: testArgs(verbose, args...),
		})
	}
	if integration {
		plan.Invocations = append(plan.Invocations, Invocation{
			Name: "integration",
			Args: testArgs(verbose, "-count=1", "./tests/integration/..."),
		})
	}
	if withID {
		plan.Env = map[string]string{EnvRunID: uuid.NewString()}
	}
	return plan, nil
}

// checkProfile validates the settings profile against the selected suites.
// An unset profile means the caller runs suites directly and gets no check.
func checkProfile(unit, integration bool) error {
	raw, ok := os.LookupEnv(config.EnvSettingsModule)
	if !ok || raw == "" {
		return nil
	}
	p, err := config.ParseProfile(raw)
	if err != nil {
		return err
	}
	if unit && !p.IncludesUnit() {
		return fmt.Errorf("settings profile %s does not cover the unit suite", p)
	}
	if integration && !p.IncludesIntegration() {
		return fmt.Errorf("settings profile %s does not cover the integration suite", p)
	}
	return nil
}

func testArgs(verbose bool, rest ...string) []string {
	args := []string{"test"}
	if verbose {
		args = append(args, "-v")
	}
	return append(args, rest...)
}

// Run executes the plan in order and returns the exit code for the whole
// call: the first non-zero child exit code, or zero. Later invocations
// still run after a failure so one call reports every broken suite.
func Run(ctx context.Context, r runner.CommandRunner, plan Plan, out io.Writer) int {
	exit := 0
	for _, inv := range plan.Invocations {
		code, err := r.Run(ctx, runner.Spec{Binary: goBinary, Args: inv.Args, Env: plan.Env})
		switch {
		case err != nil:
			fmt.Fprintln(out, red("FAIL"), inv.Name, err)
			if exit == 0 {
				exit = 1
			}
		case code != 0:
			fmt.Fprintln(out, red("FAIL"), inv.Name)
			if exit == 0 {
				exit = code
			}
		default:
			fmt.Fprintln(out, green("PASS"), inv.Name)
		}
	}
	return exit
}
