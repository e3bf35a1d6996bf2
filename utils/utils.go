package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateDashlessUUID creates a new UUID v4 and returns its string
// representation with all dashes removed. Used for request ids.
func GenerateDashlessUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// ParseBoolParam interprets a query parameter as a boolean.
// Recognizes "true", "1", "yes" and "false", "0", "no" (case-insensitive);
// anything else is an error so handlers can reject it with a 400.
func ParseBoolParam(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value '%s'", s)
	}
}
