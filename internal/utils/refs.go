package utils

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestRefPrefix starts every KB request reference.
const RequestRefPrefix = "KB"

var requestRefPattern = regexp.MustCompile(`^KB-[0-9]{8}-[0-9A-F]{8}$`)

// NewRequestRef returns a reference such as KB-20261018-7F3A9C2B: the UTC
// submission date and eight hex digits of a random UUID. Users quote it back
// when asking about a request, so it stays short.
func NewRequestRef(at time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%s",
		RequestRefPrefix,
		at.UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(id[:4])),
	)
}

// IsRequestRef reports whether ref has the shape NewRequestRef produces.
func IsRequestRef(ref string) bool {
	return requestRefPattern.MatchString(ref)
}
