package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-image/pkg/simpleimage/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := Execute(context.Background(), envBuilder, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Builder wires the components a command operates on
type Builder func(ctx context.Context, logger *slog.Logger) (*config.Components, error)

// envBuilder reads the same environment variables as the server
func envBuilder(ctx context.Context, logger *slog.Logger) (*config.Components, error) {
	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.Build(ctx, logger)
}

type app struct {
	build   Builder
	verbose bool
	comps   *config.Components
}

func (a *app) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// release closes whatever the command built. Cobra skips post-run hooks
// when RunE fails, so this runs after Execute returns instead.
func (a *app) release() error {
	if a.comps == nil {
		return nil
	}
	err := a.comps.Close()
	a.comps = nil
	return err
}

// Execute runs imagectl with args and always releases the components it
// built, whether or not the command succeeded.
func Execute(ctx context.Context, build Builder, args []string) error {
	rootCmd, a := newRootCommand(build)
	rootCmd.SetArgs(args)
	return runRoot(ctx, rootCmd, a)
}

func runRoot(ctx context.Context, rootCmd *cobra.Command, a *app) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := a.release(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to release resources: %w", closeErr))
	}
	return err
}

func newRootCommand(build Builder) (*cobra.Command, *app) {
	a := &app{build: build}

	rootCmd := &cobra.Command{
		Use:   "imagectl",
		Short: "Manage images stored by simple-image",
		Long: `imagectl operates directly on the configured repository and blob store.

It reads DATABASE_URL, STORAGE_URL and the other server variables from the
environment or a .env file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.build(cmd.Context(), a.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			a.comps = comps
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newIngestCommand(a))
	rootCmd.AddCommand(newListCommand(a))
	rootCmd.AddCommand(newFetchCommand(a))
	rootCmd.AddCommand(newRemoveCommand(a))
	rootCmd.AddCommand(newAuditCommand(a))

	return rootCmd, a
}
