package main

import (
	"encoding/json"
	"io"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
	cfg     config.Config
	logger  ectologger.Logger
	flush   func()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "clover",
		Short:         "Identity resolution across CRM, commerce and mailing sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if opts.envFile != "" {
				files = append(files, opts.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			opts.flush = flush
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.flush != nil {
				opts.flush()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newComputeCmd(opts),
		newApplyCmd(opts),
		newReverseCmd(opts),
		newAutoApplyCmd(opts),
		newSummaryCmd(opts),
	)

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
