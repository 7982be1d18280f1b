package apperr

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	notFound := fmt.Errorf("create item: %w", &HTTPError{Service: "board", StatusCode: 404})
	limited := &HTTPError{Service: "board", StatusCode: 429}
	down := &HTTPError{Service: "board", StatusCode: 503}

	assert.True(t, IsClientError(notFound))
	assert.False(t, IsClientError(limited))
	assert.False(t, IsClientError(down))
	assert.False(t, IsClientError(errors.New("boom")))

	assert.True(t, IsRateLimited(limited))
	assert.True(t, IsServerError(down))
	assert.Equal(t, 404, StatusCode(notFound))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(&net.DNSError{Err: "no such host", Name: "api.example.com"}))
	assert.True(t, IsConnectionError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsConnectionError(errors.New("boom")))
}

func TestServiceUnavailableUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := &ServiceUnavailableError{Service: "AI Workflow", Attempts: 3, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "AI Workflow service unavailable after 3 attempts", err.Error())
}

func TestHTTPErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &HTTPError{Service: "board", StatusCode: 500, Body: string(long)}
	assert.Less(t, len(err.Error()), 300)
}

func TestHTTPErrorTruncatesOnRuneBoundary(t *testing.T) {
	// Byte 200 falls inside a two-byte rune.
	body := "x" + strings.Repeat("é", 150)
	err := &HTTPError{Service: "board", StatusCode: 502, Body: body}

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "é..."))
	assert.Equal(t, "board returned HTTP 502: x"+strings.Repeat("é", 99)+"...", msg)
}
