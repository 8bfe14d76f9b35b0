package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/config"
)

var (
	// Global flags
	jsonOutput bool

	// buildVersion is reported as the telemetry service version.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version
	rootCmd := &cobra.Command{
		Use:   "clusterforge",
		Short: "clusterforge - custom resource provider for EKS clusters and Helm charts",
		Long: `clusterforge reconciles custom resource change requests for EKS clusters
and Helm chart releases and reports the outcome to the callback URL.

It runs as a Lambda function (lambda) or from the command line against a
single request (handle, plan, validate). The local command runs requests
against a SQLite-backed cluster API for development.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newLambdaCommand())
	rootCmd.AddCommand(newHandleCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newLocalCommand())

	return rootCmd
}
