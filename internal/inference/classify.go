package inference

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hpungsan/facet/internal/errors"
)

// Classify maps a provider failure onto the error taxonomy. status is the
// HTTP status the provider reported, or 0 when unknown. Throttling becomes
// RATE_LIMIT, unavailability and deadlines become TIMEOUT; everything else is
// wrapped with the provider name and left for the caller to classify.
func Classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeout(fmt.Sprintf("%s request timed out", provider), err)
	}

	switch status {
	case http.StatusTooManyRequests:
		return errors.NewRateLimit("", err)
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return errors.NewTimeout("", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests"):
		return errors.NewRateLimit("", err)
	case containsAny(msg, "503", "timeout", "timed out", "overloaded", "unavailable"):
		return errors.NewTimeout("", err)
	}

	return fmt.Errorf("%s: %w", provider, err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
