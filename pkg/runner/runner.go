// Package runner executes external deployment commands for clusterforge.
//
// A Runner retries a command only when it is idempotent and its combined
// output matches one of a small set of transient signatures. Any other
// failure is surfaced immediately with the captured output.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// DefaultMaxAttempts is the total number of tries for a transient failure.
const DefaultMaxAttempts = 3

// DefaultTransientSignatures match a severed connection to the tool's backend.
var DefaultTransientSignatures = []string{"Broken pipe"}

// Command is an external command invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ExecFunc runs cmd once and returns its combined stdout and stderr.
type ExecFunc func(ctx context.Context, cmd Command) ([]byte, error)

// LocalExec runs cmd as a local process.
func LocalExec(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = cmd.Env
	}
	return c.CombinedOutput()
}

// Options configures a Runner.
type Options struct {
	Exec                ExecFunc
	MaxAttempts         int
	TransientSignatures []string
	Recorder            engine.Recorder
	Logger              zerolog.Logger
}

// Runner runs commands with the narrow retry policy.
type Runner struct {
	exec        ExecFunc
	maxAttempts int
	signatures  [][]byte
	recorder    engine.Recorder
	logger      zerolog.Logger
}

// New creates a new runner.
func New(opts Options) *Runner {
	if opts.Exec == nil {
		opts.Exec = LocalExec
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if len(opts.TransientSignatures) == 0 {
		opts.TransientSignatures = DefaultTransientSignatures
	}
	if opts.Recorder == nil {
		opts.Recorder = engine.NopRecorder{}
	}
	sigs := make([][]byte, 0, len(opts.TransientSignatures))
	for _, s := range opts.TransientSignatures {
		if s != "" {
			sigs = append(sigs, []byte(s))
		}
	}
	return &Runner{
		exec:        opts.Exec,
		maxAttempts: opts.MaxAttempts,
		signatures:  sigs,
		recorder:    opts.Recorder,
		logger:      opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes cmd. The outcome is returned even when err is non-nil so
// callers can inspect the captured output.
func (r *Runner) Run(ctx context.Context, cmd Command, idempotent bool) (*engine.CommandOutcome, error) {
	tool := filepath.Base(cmd.Name)
	outcome := &engine.CommandOutcome{}

	for attempt := 1; ; attempt++ {
		r.logger.Debug().
			Str("command", cmd.String()).
			Int("attempt", attempt).
			Msg("executing command")

		out, err := r.exec(ctx, cmd)
		outcome.Output = out
		outcome.Attempt = attempt

		if err == nil {
			outcome.Succeeded = true
			r.recorder.RecordCommandAttempt(tool, "success")
			r.logger.Debug().
				Str("command", cmd.String()).
				Int("attempt", attempt).
				Int("output_len", len(out)).
				Msg("command completed")
			return outcome, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			r.recorder.RecordCommandAttempt(tool, "canceled")
			return outcome, engine.NewCommandError(fmt.Sprintf("%s canceled", tool), out, ctxErr)
		}

		if !idempotent || !r.IsTransient(out) {
			r.recorder.RecordCommandAttempt(tool, "failure")
			msg := strings.TrimSpace(string(out))
			if msg == "" {
				msg = fmt.Sprintf("%s failed", tool)
			}
			return outcome, engine.NewCommandError(msg, out, err)
		}

		r.recorder.RecordCommandAttempt(tool, "transient")
		if attempt >= r.maxAttempts {
			return outcome, engine.NewCommandError(
				fmt.Sprintf("Operation failed after %d attempts: %s", r.maxAttempts, strings.TrimSpace(string(out))),
				out, nil)
		}
		r.logger.Info().
			Str("command", cmd.String()).
			Int("retries_left", r.maxAttempts-attempt).
			Msg("transient failure, retrying")
	}
}

// IsTransient reports whether out carries a transient failure signature.
func (r *Runner) IsTransient(out []byte) bool {
	for _, sig := range r.signatures {
		if bytes.Contains(out, sig) {
			return true
		}
	}
	return false
}
