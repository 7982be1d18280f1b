// Package apperr defines the failure kinds the bot distinguishes when logging,
// retrying and talking back to users.
package apperr

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"unicode/utf8"
)

// ErrUnexpected is the opaque error returned once an unknown failure has been
// logged and translated for the user.
var ErrUnexpected = errors.New("an unexpected error occurred")

// ServiceUnavailableError means an external dependency kept failing after all retries.
type ServiceUnavailableError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s service unavailable after %d attempts", e.Service, e.Attempts)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// IncompleteRequestError means submission was attempted with missing or invalid fields.
type IncompleteRequestError struct {
	Field  string
	Reason string
}

func (e *IncompleteRequestError) Error() string {
	return fmt.Sprintf("your request is incomplete: %s", e.Reason)
}

// FileAttachmentError is a single file that could not be attached to a board record.
type FileAttachmentError struct {
	FileRef string
	Err     error
}

func (e *FileAttachmentError) Error() string {
	return fmt.Sprintf("attach file %s: %v", e.FileRef, e.Err)
}

func (e *FileAttachmentError) Unwrap() error {
	return e.Err
}

// maxErrorBody caps, in bytes, how much of a response body an HTTPError quotes.
const maxErrorBody = 200

// HTTPError is a non-2xx response from an external service.
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, strings.TrimSpace(body))
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// IsClientError reports a 4xx failure other than 429. Those are caused by the
// request itself and are never retried.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// IsRateLimited reports a 429 response.
func IsRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

// IsServerError reports a 5xx response.
func IsServerError(err error) bool {
	return StatusCode(err) >= 500
}

// IsConnectionError reports DNS failures and refused or reset connections.
func IsConnectionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
