package commands

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

func newLambdaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Serve change requests as a Lambda function",
		Long: `Serve change requests delivered by the Lambda runtime. Every invocation
is reconciled and answered through its ResponseURL; the invocation itself
always succeeds so the orchestrator only ever sees the callback.

The log stream name quoted in responses is read from
AWS_LAMBDA_LOG_STREAM_NAME.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			lambda.StartWithOptions(a.lambdaHandler, lambda.WithEnableSIGTERM(a.Close))
			return nil
		},
	}

	return cmd
}

// lambdaHandler handles one invocation.
func (a *app) lambdaHandler(ctx context.Context, raw engine.RawEvent) error {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		a.logger.Debug().
			Str("aws_request_id", lc.AwsRequestID).
			Str("function_arn", lc.InvokedFunctionArn).
			Msg("invocation started")
	}

	ctx, cancel := reconcileContext(ctx, a.cfg.HTTPTimeout)
	defer cancel()

	res := a.handle(ctx, raw)
	if res.TransportErr != nil {
		a.logger.Error().Err(res.TransportErr).Msg("response not delivered")
	}
	return nil
}

// reconcileContext ends reconciliation margin before the invocation
// deadline so the FAILED response can still be sent in the remaining time.
func reconcileContext(ctx context.Context, margin time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-margin))
}
