package yadisk

import (
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// APIError is the error body returned by the Yandex.Disk REST API.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Description
	}
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("api error: status %d %s - %s", e.StatusCode, e.Code, msg)
}

// Unwrap maps the HTTP status onto the shared provider sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.ErrUnauthorized
	case http.StatusNotFound:
		return provider.ErrNotFound
	case http.StatusConflict:
		return provider.ErrAlreadyExists
	case http.StatusInsufficientStorage:
		return provider.ErrQuotaExceeded
	}
	return nil
}

// handleAPIError turns a transport error or an error state response into an error.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		// Error bodies that are not JSON surface as decode errors; keep the status.
		if resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("yadisk %s: %w", operation, &APIError{StatusCode: resp.StatusCode, Message: resp.Status})
		}
		return fmt.Errorf("yadisk %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		apiErr, _ := resp.ErrorResult().(*APIError)
		if apiErr == nil {
			apiErr = &APIError{Message: resp.Status}
		}
		apiErr.StatusCode = resp.StatusCode
		return fmt.Errorf("yadisk %s: %w", operation, apiErr)
	}
	return nil
}
