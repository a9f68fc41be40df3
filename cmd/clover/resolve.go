package main

import (
	"context"
	"errors"
	"strings"

	utils "github.com/Ramsey-B/clover/pkg/context"
	"github.com/spf13/cobra"
)

const cliActor = "cli"

type scopeOptions struct {
	orgID string
	actor string
}

func (s *scopeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.orgID, "org", "", "Organization to resolve (required)")
	cmd.Flags().StringVar(&s.actor, "actor", cliActor, "Actor recorded on the run")
	_ = cmd.MarkFlagRequired("org")
}

func (s *scopeOptions) context(ctx context.Context) context.Context {
	ctx = utils.SetOrgID(ctx, s.orgID)
	return utils.SetActorID(ctx, s.actor)
}

// withApp opens the app without migrating, runs fn and prints its result as JSON.
func withApp(cmd *cobra.Command, root *rootOptions, scope *scopeOptions, fn func(ctx context.Context, a *app) (any, error)) error {
	if strings.TrimSpace(scope.orgID) == "" {
		return errors.New("--org must not be empty")
	}

	a, err := newApp(cmd.Context(), root.cfg, root.logger, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := fn(scope.context(cmd.Context()), a)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func newComputeCmd(root *rootOptions) *cobra.Command {
	var scope scopeOptions

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Match every source and persist a run for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, &scope, func(ctx context.Context, a *app) (any, error) {
				return a.orchestrator.Compute(ctx, scope.orgID, scope.actor)
			})
		},
	}
	scope.bind(cmd)

	return cmd
}

func newApplyCmd(root *rootOptions) *cobra.Command {
	var (
		scope    scopeOptions
		runID    string
		accepted []string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Materialize a run's candidates as same-person edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			if cmd.Flags().Changed("accept") {
				ids = accepted
				if ids == nil {
					ids = []string{}
				}
			}
			return withApp(cmd, root, &scope, func(ctx context.Context, a *app) (any, error) {
				return a.orchestrator.Apply(ctx, scope.orgID, runID, scope.actor, ids)
			})
		},
	}
	scope.bind(cmd)
	cmd.Flags().StringVar(&runID, "run", "", "Run to apply (required)")
	cmd.Flags().StringSliceVar(&accepted, "accept", nil, "Candidate ids to accept (default: every non-rejected candidate)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func newReverseCmd(root *rootOptions) *cobra.Command {
	var (
		scope scopeOptions
		runID string
	)

	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Retire the edges a run created and reset its candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, &scope, func(ctx context.Context, a *app) (any, error) {
				return a.orchestrator.Reverse(ctx, scope.orgID, runID, scope.actor)
			})
		},
	}
	scope.bind(cmd)
	cmd.Flags().StringVar(&runID, "run", "", "Run to reverse (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func newAutoApplyCmd(root *rootOptions) *cobra.Command {
	var scope scopeOptions

	cmd := &cobra.Command{
		Use:   "auto-apply",
		Short: "Compute a run and apply every candidate above the confidence threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, &scope, func(ctx context.Context, a *app) (any, error) {
				return a.orchestrator.AutoApply(ctx, scope.orgID, scope.actor)
			})
		},
	}
	scope.bind(cmd)

	return cmd
}

func newSummaryCmd(root *rootOptions) *cobra.Command {
	var scope scopeOptions

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count unified people across every source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, &scope, func(ctx context.Context, a *app) (any, error) {
				return a.identity.Summary(ctx, scope.orgID)
			})
		},
	}
	scope.bind(cmd)

	return cmd
}
