// Package validation checks and normalizes user answers before they enter session state.
// Every function here is pure.
package validation

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError reports a user-input problem with a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TextOptions bounds a free-text answer. Lengths are counted in runes.
type TextOptions struct {
	MinLength int
	MaxLength int
	Required  bool
}

// ValidateText trims value, enforces the bounds and returns it HTML-escaped.
func ValidateText(value, field string, opts TextOptions) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if opts.Required {
			return "", newError(field, "%s is required", field)
		}
		return "", nil
	}

	n := utf8.RuneCountInString(trimmed)
	if opts.MinLength > 0 && n < opts.MinLength {
		return "", newError(field, "%s must be at least %d characters long", field, opts.MinLength)
	}
	if opts.MaxLength > 0 && n > opts.MaxLength {
		return "", newError(field, "%s cannot exceed %d characters", field, opts.MaxLength)
	}

	return html.EscapeString(trimmed), nil
}

// ValidateEnum fails unless value is one of allowed.
func ValidateEnum(value, field string, allowed []string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", newError(field, "%s is required", field)
	}
	for _, a := range allowed {
		if trimmed == a {
			return a, nil
		}
	}
	return "", newError(field, "%s must be one of: %s", field, strings.Join(allowed, ", "))
}

var (
	slackUserPattern = regexp.MustCompile(`(?i)^[UW][A-Z0-9]+$`)
	phonePattern     = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
	slackLinkPattern = regexp.MustCompile(`<([^|>]+)(?:\|[^>]*)?>`)
)

// ValidateIdentifier accepts a Slack user id or a WhatsApp number in E.164 form,
// with or without the "whatsapp:" prefix.
func ValidateIdentifier(value string) (string, error) {
	const field = "User ID"

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", newError(field, "%s is required", field)
	}
	if slackUserPattern.MatchString(trimmed) {
		return trimmed, nil
	}
	if phonePattern.MatchString(strings.TrimPrefix(trimmed, "whatsapp:")) {
		return trimmed, nil
	}
	return "", newError(field, "%s has invalid format", field)
}

// ValidateFileReferences trims every entry and fails on an empty one.
// A nil or empty list is valid.
func ValidateFileReferences(values []string) ([]string, error) {
	const field = "Files"

	out := make([]string, 0, len(values))
	for i, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, newError(field, "File %d ID must be a non-empty string", i+1)
		}
		out = append(out, trimmed)
	}
	return out, nil
}

// ValidateURL accepts an absolute http or https URL.
func ValidateURL(value, field string, required bool) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return "", newError(field, "%s is required", field)
		}
		return "", nil
	}

	u, err := url.ParseRequestURI(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", newError(field, "%s must be a valid URL", field)
	}
	return trimmed, nil
}

// ValidateURLList validates a comma or whitespace separated list of URLs and
// returns them joined by newlines.
func ValidateURLList(value, field string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if maxLength > 0 && utf8.RuneCountInString(trimmed) > maxLength {
		return "", newError(field, "%s cannot exceed %d characters", field, maxLength)
	}

	// Slack wraps links as <https://x|label>.
	trimmed = slackLinkPattern.ReplaceAllString(trimmed, "$1")

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		u, err := ValidateURL(p, field, true)
		if err != nil {
			return "", err
		}
		urls = append(urls, u)
	}
	return strings.Join(urls, "\n"), nil
}

var noneSentinels = map[string]bool{
	"":     true,
	"none": true,
	"n/a":  true,
	"na":   true,
	"skip": true,
	"-":    true,
	"no":   true,
}

// IsNoneSentinel reports whether text means "nothing to add" for an optional step.
func IsNoneSentinel(text string) bool {
	return noneSentinels[strings.ToLower(strings.TrimSpace(text))]
}
