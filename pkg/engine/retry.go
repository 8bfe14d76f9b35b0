package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// httpStatusCodePattern matches 5xx codes at word boundaries so port
// numbers like ":5000" do not count.
var httpStatusCodePattern = regexp.MustCompile(`\b50[0-4]\b`)

var transientTextPatterns = []string{
	"Internal Server Error", "Bad Gateway",
	"Service Unavailable", "Gateway Timeout",
	"connection reset by peer", "connection refused",
	"i/o timeout", "TLS handshake timeout",
	"unexpected EOF", "no such host",
}

// IsTransientPollError reports whether a status query failure is a network
// blip the convergence waiter may swallow. Context cancellation never is.
func IsTransientPollError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRetryable(err) {
		return true
	}
	msg := err.Error()
	for _, pattern := range transientTextPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return httpStatusCodePattern.MatchString(msg)
}
