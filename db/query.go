package db

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var isNumberLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ContentCondition is a single "path operator value" filter applied to the
// stored JSON content of a file. Path uses gjson dot notation.
type ContentCondition struct {
	Path     string
	Operator string
	Value    string
}

var validQueryOperators = map[string]bool{
	"eq": true, "ne": true,
	"gt": true, "gte": true,
	"lt": true, "lte": true,
	"contains": true, "startswith": true, "endswith": true,
}

// ParseContentCondition parses a raw query like "profile.age gte 21" into a
// condition. The value is everything after the operator, so values may
// contain spaces.
func ParseContentCondition(raw string) (*ContentCondition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("query must have the form 'path operator value'")
	}
	op := strings.ToLower(parts[1])
	if !validQueryOperators[op] {
		return nil, fmt.Errorf("invalid query operator '%s'", parts[1])
	}
	return &ContentCondition{Path: parts[0], Operator: op, Value: strings.TrimSpace(parts[2])}, nil
}

// Matches reports whether the given JSON content satisfies the condition. A
// path that does not exist in the content never matches.
func (c *ContentCondition) Matches(content string) bool {
	target := gjson.Get(content, c.Path)
	if !target.Exists() {
		return false
	}

	// Compare numerically when both sides are numbers, otherwise as strings.
	if target.Type == gjson.Number && isNumberLiteral.MatchString(c.Value) {
		return compareNumbers(target.Num, c)
	}
	return compareStrings(target.String(), c)
}

func compareNumbers(actual float64, c *ContentCondition) bool {
	var expected float64
	fmt.Sscanf(c.Value, "%g", &expected)
	switch c.Operator {
	case "eq":
		return actual == expected
	case "ne":
		return actual != expected
	case "gt":
		return actual > expected
	case "gte":
		return actual >= expected
	case "lt":
		return actual < expected
	case "lte":
		return actual <= expected
	default:
		// Ordering-free operators fall back to string comparison.
		return compareStrings(fmt.Sprintf("%g", actual), c)
	}
}

func compareStrings(actual string, c *ContentCondition) bool {
	switch c.Operator {
	case "eq":
		return actual == c.Value
	case "ne":
		return actual != c.Value
	case "gt":
		return actual > c.Value
	case "gte":
		return actual >= c.Value
	case "lt":
		return actual < c.Value
	case "lte":
		return actual <= c.Value
	case "contains":
		return strings.Contains(actual, c.Value)
	case "startswith":
		return strings.HasPrefix(actual, c.Value)
	case "endswith":
		return strings.HasSuffix(actual, c.Value)
	default:
		return false
	}
}
