// Package callback delivers reconciliation outcomes to the pre-signed
// ResponseURL of a custom-resource request.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// DefaultTimeout bounds a single callback request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a rejected response body ends up in the error.
const maxErrorBody = 1024

// Config holds callback reporter configuration.
type Config struct {
	// Timeout bounds each PUT request
	Timeout time.Duration

	// Client overrides the HTTP client (tests)
	Client *http.Client
}

// Reporter PUTs response payloads to the callback URL.
type Reporter struct {
	client *http.Client
	logger zerolog.Logger
}

// NewReporter creates a new callback reporter.
func NewReporter(cfg Config, logger zerolog.Logger) *Reporter {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Reporter{
		client: client,
		logger: logger.With().Str("component", "callback").Logger(),
	}
}

// Report sends payload to url. The pre-signed URL signs an empty content
// type, so none is sent.
func (r *Reporter) Report(ctx context.Context, url string, payload *engine.ResponsePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return engine.NewTransportError("failed to encode response", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return engine.NewTransportError("failed to build callback request", err)
	}
	req.Header.Set("Content-Type", "")
	req.ContentLength = int64(len(body))

	r.logger.Debug().
		Str("status", string(payload.Status)).
		Str("physical_id", payload.PhysicalResourceID).
		Int("bytes", len(body)).
		Msg("sending response")

	resp, err := r.client.Do(req)
	if err != nil {
		return engine.NewTransportError("failed to send response", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return engine.NewTransportError(
			fmt.Sprintf("callback rejected with status %d", resp.StatusCode),
			errors.New(string(bytes.TrimSpace(snippet))),
		)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	r.logger.Info().Int("http_status", resp.StatusCode).Msg("response delivered")
	return nil
}
