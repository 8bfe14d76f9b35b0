package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// planView is the printed form of a plan.
type planView struct {
	Kind        engine.ResourceKind         `json:"kind"`
	RequestType engine.RequestType          `json:"request_type"`
	Identity    string                      `json:"identity"`
	Operation   engine.OperationType        `json:"operation"`
	PhysicalID  string                      `json:"physical_id,omitempty"`
	Decision    *engine.ReplacementDecision `json:"decision,omitempty"`
}

func newPlanCommand() *cobra.Command {
	var eventPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a change request would do",
		Long: `Classify and admit a change request and print the operation it would
perform: create, update, replace, delete or noop. Nothing is executed and
no response is sent.`,
		Example: `  # Would this update replace the cluster?
  clusterforge plan --event update-cluster.json`,
		Args: cobra.NoArgs,
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

			req, out, err := a.reconciler.Plan(cmd.Context(), raw)
			if err != nil {
				return err
			}

			view := planView{
				Kind:        req.Kind,
				RequestType: req.Type,
				Identity:    req.Identity.Name,
				Operation:   out.Operation,
				PhysicalID:  out.PhysicalID,
				Decision:    out.Decision,
			}
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, view)
			}

			fmt.Fprintf(w, "%s %s %q: %s\n", view.RequestType, view.Kind, view.Identity, view.Operation)
			if view.PhysicalID != "" && view.PhysicalID != view.Identity {
				fmt.Fprintf(w, "  new physical id: %s\n", view.PhysicalID)
			}
			if view.Decision != nil && view.Decision.Required {
				fmt.Fprintf(w, "  replacement required: %s\n", view.Decision.Reason)
			}
			return nil
		},
	}

	addEventFlag(cmd, &eventPath)

	return cmd
}
