package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/config"
)

func newLocalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Work against the SQLite-backed cluster API",
		Long: `Run change requests against a local, SQLite-backed cluster API.

Clusters move through the same transitional statuses as the real API and
settle after --settle-delay, so convergence waits behave as in production.
Chart requests still run helm against the cluster named in the request.`,
	}

	cmd.AddCommand(newLocalHandleCommand())
	cmd.AddCommand(newLocalClustersCommand())
	cmd.AddCommand(newLocalHistoryCommand())

	return cmd
}

func newLocalHandleCommand() *cobra.Command {
	var (
		eventPath  string
		noCallback bool
	)

	cmd := &cobra.Command{
		Use:   "handle",
		Short: "Reconcile one change request against local state",
		Example: `  clusterforge local handle --no-callback --event create-cluster.json
  clusterforge local handle --settle-delay 1s < delete-cluster.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readEvent(eventPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd, appOptions{
				backend:    config.BackendLocal,
				noCallback: noCallback,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			return reportResult(cmd.OutOrStdout(), a.handle(cmd.Context(), raw))
		},
	}

	addEventFlag(cmd, &eventPath)
	cmd.Flags().BoolVar(&noCallback, "no-callback", false, "print the response instead of sending it")
	cmd.Flags().Duration("settle-delay", 0, "time a cluster stays in a transitional status")

	return cmd
}

func newLocalClustersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clusters",
		Short: "List clusters in local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd, appOptions{backend: config.BackendLocal, noCallback: true})
			if err != nil {
				return err
			}
			defer a.Close()

			clusters, err := a.store.ListClusters(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), clusters)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tENDPOINT")
			for _, c := range clusters {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Version, c.Status, c.Endpoint)
			}
			return w.Flush()
		},
	}
}

func newLocalHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently handled requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd, appOptions{backend: config.BackendLocal, noCallback: true})
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.store.ListReconciliations(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), records)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tREQUEST\tTYPE\tKIND\tPHYSICAL ID\tSTATUS\tDURATION")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Format(time.RFC3339), r.RequestID, r.RequestType, r.Kind,
					r.PhysicalID, r.Status, r.Duration.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")

	return cmd
}
