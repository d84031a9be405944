package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"compass/internal/model"
)

// Timeout bounds each request; the handler's context is cancelled when the
// budget runs out so database calls in flight are abandoned too.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
