package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kalambet/relay/internal/openai"
)

// classify maps a backend invocation failure onto a stable error message.
// The original error stays in the chain for callers that need detail.
func classify(kind Kind, model string, err error) error {
	switch status := openai.StatusOf(err); status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s backend: authentication failed, check the API key: %w", kind, err)
	case http.StatusNotFound:
		return fmt.Errorf("%s backend: model %q not found: %w", kind, model, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s backend: rate limited: %w", kind, err)
	case 0:
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s backend: cannot reach server: %w", kind, err)
		}
		return fmt.Errorf("%s backend: request failed: %w", kind, err)
	default:
		return fmt.Errorf("%s backend: request failed: %w", kind, err)
	}
}
