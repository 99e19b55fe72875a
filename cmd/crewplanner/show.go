package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/logging"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/store"
)

func newShowCmd(root *rootOptions) *cobra.Command {
	var output string
	var limit int

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored run, or list recent runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, closeRuns, err := openRunStore(root)
			if err != nil {
				return err
			}
			defer closeRuns()

			if len(args) == 1 {
				rec, err := runs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, rec)
			}

			recs, err := runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, rec := range recs {
				reason := "-"
				if rec.Artifact != nil {
					reason = string(rec.Artifact.TerminalReason)
				}
				fmt.Fprintf(w, "%s  %-9s  %-18s  %s\n",
					rec.RunID, rec.Status, reason, rec.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func newDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete stored runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, closeRuns, err := openRunStore(root)
			if err != nil {
				return err
			}
			defer closeRuns()

			for _, id := range args {
				if err := runs.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

// openRunStore opens the configured run store for the read-side commands.
func openRunStore(root *rootOptions) (*store.BadgerStore, func(), error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	runs, err := store.Open(cfg.Store, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return runs, func() {
		_ = runs.Close()
		_ = logger.Sync()
	}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "crewplanner %s\n", observability.Version)
			return err
		},
	}
}
