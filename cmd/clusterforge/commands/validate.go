package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var eventPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a change request",
		Long: `Validate a change request without planning or executing it.

This command checks:
  - the request envelope (type, ids, response URL)
  - the resource properties against the CUE property schemas
  - identity resolution (explicit name, physical id, synthesized name)`,
		Example: `  clusterforge validate --event create-cluster.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readEvent(eventPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd, appOptions{noCallback: true})
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := a.reconciler.Classify(cmd.Context(), raw)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]string{
					"kind":         string(req.Kind),
					"request_type": string(req.Type),
					"identity":     req.Identity.Name,
				})
			}
			fmt.Fprintf(w, "valid %s %s request for %q\n", req.Kind, req.Type, req.Identity.Name)
			return nil
		},
	}

	addEventFlag(cmd, &eventPath)

	return cmd
}
