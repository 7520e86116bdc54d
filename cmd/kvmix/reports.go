package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkilian/kvmix/internal/app"
	"github.com/arkilian/kvmix/internal/config"
	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/report"
	"github.com/arkilian/kvmix/internal/storage"
)

func newReportsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect archived run reports",
	}
	cmd.AddCommand(
		newReportsListCmd(opts),
		newReportsShowCmd(opts),
		newReportsRemoveCmd(opts),
	)
	return cmd
}

// openArchive loads the configuration and opens the report archive it names.
func openArchive(cmd *cobra.Command, opts *globalOptions, flags *config.Config) (*config.Config, storage.ObjectStorage, error) {
	cfg, _, err := prepare(cmd, opts, flags)
	if err != nil {
		return nil, nil, err
	}
	store, err := app.OpenStorage(cmd.Context(), cfg.Report.Storage)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, kverrors.NewConfigurationError(kverrors.CodeInvalidField,
			"no report archive configured: set --storage to local or s3")
	}
	return cfg, store, nil
}

func archiveCommand(opts *globalOptions, use, short string, args cobra.PositionalArgs,
	run func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store storage.ObjectStorage, args []string) error) *cobra.Command {
	flags := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openArchive(cmd, opts, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd, cfg, store, args)
		},
	}
	bindReportFlags(cmd, flags)
	return cmd
}

func newReportsListCmd(opts *globalOptions) *cobra.Command {
	return archiveCommand(opts, "list", "List archived run IDs", cobra.NoArgs,
		func(ctx context.Context, cmd *cobra.Command, _ *config.Config, store storage.ObjectStorage, _ []string) error {
			ids, err := report.List(ctx, store)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
}

func newReportsShowCmd(opts *globalOptions) *cobra.Command {
	return archiveCommand(opts, "show <run-id|latest>", "Print an archived report", cobra.ExactArgs(1),
		func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store storage.ObjectStorage, args []string) error {
			r, err := report.Fetch(ctx, store, args[0])
			if err != nil {
				return err
			}
			return r.Write(cmd.OutOrStdout(), cfg.Report.Format)
		})
}

func newReportsRemoveCmd(opts *globalOptions) *cobra.Command {
	return archiveCommand(opts, "rm <run-id>...", "Delete archived reports", cobra.MinimumNArgs(1),
		func(ctx context.Context, cmd *cobra.Command, _ *config.Config, store storage.ObjectStorage, args []string) error {
			for _, id := range args {
				if err := report.Remove(ctx, store, id); err != nil {
					return err
				}
			}
			return nil
		})
}
