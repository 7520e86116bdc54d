// Package main implements the kvmix binary: a correctness-checked throughput
// benchmark for concurrent key-value tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arkilian/kvmix/internal/app"
	"github.com/arkilian/kvmix/internal/config"
	kverrors "github.com/arkilian/kvmix/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	exitError         = 1
	exitConfiguration = 2
	exitViolation     = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvmix: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case kverrors.IsConfigurationError(err):
		return exitConfiguration
	case kverrors.IsInvariantViolation(err):
		return exitViolation
	default:
		return exitError
	}
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "kvmix",
		Short:         "Benchmark concurrent key-value tables under a mixed workload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before KVMIX_ variables are read")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(opts), newServeCmd(opts), newReportsCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kvmix version %s (commit: %s)\n", version, commit)
		},
	}
}

// newLogger builds the text logger on stderr.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, kverrors.NewConfigurationError(kverrors.CodeInvalidField,
			fmt.Sprintf("invalid log level %q", level))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// loadConfig layers defaults or the config file, then the environment, then
// the flags the user actually set.
func loadConfig(cmd *cobra.Command, opts *globalOptions, flags *config.Config) (*config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, kverrors.Wrap(kverrors.ErrCategoryConfiguration, kverrors.CodeConfigLoad,
				"failed to load env file", err)
		}
	}

	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(opts.configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg, flags)
	return cfg, nil
}

func prepare(cmd *cobra.Command, opts *globalOptions, flags *config.Config) (*config.Config, *slog.Logger, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd, opts, flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	flags := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one benchmark and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := prepare(cmd, opts, flags)
			if err != nil {
				return err
			}
			_, err = app.Run(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
			return err
		},
	}
	bindWorkloadFlags(cmd, flags)
	bindTableFlags(cmd, flags)
	bindReportFlags(cmd, flags)
	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	flags := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local table over gRPC for remote runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := prepare(cmd, opts, flags)
			if err != nil {
				return err
			}
			srv, err := app.NewTableServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}
	bindTableFlags(cmd, flags)
	f := cmd.Flags()
	f.StringVar(&flags.Serve.GRPCAddr, "grpc-addr", flags.Serve.GRPCAddr, "gRPC listen address")
	f.StringVar(&flags.Serve.HTTPAddr, "http-addr", flags.Serve.HTTPAddr, "HTTP address for /health and /metrics (empty disables)")
	return cmd
}
