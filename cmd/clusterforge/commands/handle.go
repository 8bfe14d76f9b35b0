package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

func newHandleCommand() *cobra.Command {
	var (
		eventPath  string
		noCallback bool
	)

	cmd := &cobra.Command{
		Use:   "handle",
		Short: "Reconcile one change request and report the outcome",
		Long: `Reconcile one change request and PUT the response to its ResponseURL.

The request is read from --event, or from stdin. The command exits non-zero
when the request was reported as FAILED or the response could not be
delivered.`,
		Example: `  # Handle a request stored in a file
  clusterforge handle --event create-cluster.json

  # Handle a chart request without calling back
  clusterforge handle --kind chart --no-callback < install-chart.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readEvent(eventPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd, appOptions{noCallback: noCallback})
			if err != nil {
				return err
			}
			defer a.Close()

			return reportResult(cmd.OutOrStdout(), a.handle(cmd.Context(), raw))
		},
	}

	addEventFlag(cmd, &eventPath)
	cmd.Flags().BoolVar(&noCallback, "no-callback", false, "print the response instead of sending it")

	return cmd
}

// reportResult prints the response payload and turns a failed request into
// a command error.
func reportResult(w io.Writer, res *engine.Result) error {
	if jsonOutput {
		if err := printJSON(w, res.Payload); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Status:     %s\n", res.Payload.Status)
		fmt.Fprintf(w, "PhysicalId: %s\n", res.Payload.PhysicalResourceID)
		fmt.Fprintf(w, "Reason:     %s\n", res.Payload.Reason)
		for k, v := range res.Payload.Data {
			fmt.Fprintf(w, "Data.%s: %v\n", k, v)
		}
	}

	if res.TransportErr != nil {
		return fmt.Errorf("response not delivered: %w", res.TransportErr)
	}
	if res.Err != nil {
		return fmt.Errorf("request failed: %w", res.Err)
	}
	return nil
}
