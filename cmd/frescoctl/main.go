package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/engine"
	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/runner"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/internal/suites"
)

const version = "0.0.1"

var rootCmd = &cobra.Command{
	Use:          "frescoctl",
	Short:        "Manage a Fresco recommendation deployment",
	Version:      version,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Connect to DATABASE_URL and bring the schema up to date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openPostgres(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var trainCmd = &cobra.Command{
	Use:   "train {popularity|cooccurrence}",
	Short: "Train a model and persist the snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openPostgres(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close(cmd.Context())
		snap, err := engine.Train(cmd.Context(), st, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trained %s version %d\n", snap.Identifier, snap.Version)
		return nil
	},
}

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed API token",
	Long:  `Sign a bearer token with JWT_SIGNING_KEY and print it to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := config.LoadServer().JWTSigningKey
		if key == "" {
			return errors.New("JWT_SIGNING_KEY is not set")
		}
		now := time.Now()
		claims := jwt.MapClaims{
			"sub":    tokenSubject,
			"roles":  tokenRoles,
			"exp":    now.Add(tokenTTL).Unix(),
			"issued": now.Unix(),
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := tok.SignedString([]byte(key))
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

var (
	testVerbosity int
	testWithID    bool
)

var testCmd = &cobra.Command{
	Use:   "test [flags] [suite options]",
	Short: "Run project test suites",
	Long: `Map suite labels to go test invocations and run them sequentially:
tests/unit, tests/integration and --with-doctest followed by package paths.
Flags must precede the suite options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := suites.BuildPlan(args, testVerbosity, testWithID)
		if err != nil {
			return err
		}
		if code := suites.Run(cmd.Context(), &runner.ExecRunner{}, plan, cmd.OutOrStdout()); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the frescoctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "frescoctl "+version)
	},
}

func openPostgres(ctx context.Context) (store.Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	st, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{"admin"}, "role claim, repeatable")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("subject")

	testCmd.Flags().IntVar(&testVerbosity, "verbosity", 1, "2 or higher passes -v to go test")
	testCmd.Flags().BoolVar(&testWithID, "with-id", false, "export a run ID to child test processes")
	// suite options like --with-doctest are parsed by the plan builder,
	// not by the flag set
	testCmd.Flags().SetInterspersed(false)
}

func main() {
	logging.Init()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(migrateCmd, fillCmd, trainCmd, tokenCmd, testCmd, versionCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
