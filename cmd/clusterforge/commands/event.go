package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// addEventFlag registers the --event flag on cmd.
func addEventFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "event", "e", "-", "change request JSON file, - for stdin")
}

// readEvent decodes a change request from path, or from stdin when path is "-".
func readEvent(path string, stdin io.Reader) (engine.RawEvent, error) {
	var raw engine.RawEvent

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return raw, fmt.Errorf("failed to open event: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return raw, fmt.Errorf("failed to decode event: %w", err)
	}
	return raw, nil
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
