package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// pollErrorStatus labels a poll that failed with a transient error.
const pollErrorStatus ResourceStatus = "ERROR"

// NotFoundGracePolls is how many leading not-found polls a wait for a present
// status tolerates. A resource created a moment ago may not be visible yet.
const NotFoundGracePolls = 2

// Waiter polls a status probe until a target status is reached.
type Waiter struct {
	kind     string
	recorder Recorder
	logger   zerolog.Logger
}

// NewWaiter creates a waiter that records polls under kind.
func NewWaiter(kind string, recorder Recorder, logger zerolog.Logger) *Waiter {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Waiter{
		kind:     kind,
		recorder: recorder,
		logger:   logger.With().Str("component", "waiter").Logger(),
	}
}

// Wait polls probe at a fixed interval, at most spec.MaxAttempts times,
// without sleeping after the last poll. A FAILED observation aborts the
// wait, and a not-found poll satisfies an ABSENT target. Transient poll
// errors consume an attempt, as do the first NotFoundGracePolls not-found
// polls toward any other target; any other poll error is returned as is.
func (w *Waiter) Wait(ctx context.Context, probe StatusProbe, id ResourceIdentity, target ResourceStatus, spec WaitSpec) (*Observation, error) {
	if err := spec.Validate(); err != nil {
		return nil, NewInternalError("invalid wait spec", err)
	}

	var last ResourceStatus
	for attempt := 1; attempt <= spec.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("waiting for %s to reach %s: %w", id, target, err)
		}

		obs, err := probe.Probe(ctx, id)
		switch {
		case err != nil && target == ResourceStatusAbsent && errors.Is(err, ErrNotFound):
			obs = &Observation{Status: ResourceStatusAbsent}
		case err != nil && (IsTransientPollError(err) || attempt <= NotFoundGracePolls && errors.Is(err, ErrNotFound)):
			w.recorder.RecordPoll(w.kind, pollErrorStatus)
			w.logger.Warn().
				Err(err).
				Str("resource", id.Name).
				Int("attempt", attempt).
				Msg("transient poll failure")
			if attempt < spec.MaxAttempts {
				if err := sleepContext(ctx, spec.PollInterval); err != nil {
					return nil, fmt.Errorf("waiting for %s to reach %s: %w", id, target, err)
				}
			}
			continue
		case err != nil:
			return nil, err
		}

		if obs == nil {
			obs = &Observation{Status: ResourceStatusAbsent}
		}
		last = obs.Status
		w.recorder.RecordPoll(w.kind, obs.Status)
		w.logger.Debug().
			Str("resource", id.Name).
			Str("status", string(obs.Status)).
			Str("target", string(target)).
			Int("attempt", attempt).
			Int("max_attempts", spec.MaxAttempts).
			Msg("poll")

		if obs.Status == target {
			return obs, nil
		}
		if obs.Status == ResourceStatusFailed {
			return obs, NewResourceFailed(id.Name, obs.Status)
		}

		if attempt < spec.MaxAttempts {
			if err := sleepContext(ctx, spec.PollInterval); err != nil {
				return nil, fmt.Errorf("waiting for %s to reach %s: %w", id, target, err)
			}
		}
	}

	return nil, NewConvergenceTimeout(id.Name, target, spec).WithDetail("last_status", string(last))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
