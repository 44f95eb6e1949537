package llmclient

import (
	"errors"
	"fmt"
)

type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (%d): %s", e.Status, e.Message)
}

// Retryable reports whether the error is worth retrying: transport failures
// and server-side statuses are, client errors are not.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	return err != nil
}
