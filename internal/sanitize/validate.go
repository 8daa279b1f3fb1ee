// Package sanitize validates identifiers that arrive over the HTTP and MCP
// boundaries before they reach the core packages.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// MaxIDLength bounds every identifier, in bytes.
const MaxIDLength = 256

// ErrInvalidID is wrapped by every validation failure.
var ErrInvalidID = errors.New("invalid identifier")

// ValidateLearningID checks a state or action id. Ids become half of a
// "state|action" Q-table key, so they must be non-empty and must not
// contain the key separator.
func ValidateLearningID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidID, kind)
	}
	if strings.Contains(id, learning.KeySeparator) {
		return fmt.Errorf("%w: %s must not contain %q", ErrInvalidID, kind, learning.KeySeparator)
	}
	return validateText(kind, id)
}

// ValidateMemoryID checks a memory entry id. Empty is allowed; the memory
// generates one.
func ValidateMemoryID(id string) error {
	if id == "" {
		return nil
	}
	return validateText("memory id", id)
}

func validateText(kind, id string) error {
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidID, kind, MaxIDLength)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidID, kind)
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %s contains control characters", ErrInvalidID, kind)
	}
	return nil
}
