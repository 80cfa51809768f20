package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinayprograms/blogcrew/errors"
)

// Args wraps tool arguments with typed accessor methods. Models send JSON,
// so numbers arrive as float64.
type Args map[string]interface{}

// String gets a required, non-blank string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("%s is required", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("%s must be a string, got %T", key, v))
	}
	if strings.TrimSpace(s) == "" {
		return "", errors.InvalidInput(fmt.Sprintf("%s must not be empty", key))
	}
	return s, nil
}

// StringOr gets an optional string argument with a default.
func (a Args) StringOr(key, defaultVal string) string {
	if s, ok := a[key].(string); ok && s != "" {
		return s
	}
	return defaultVal
}

// Int gets a required integer argument.
func (a Args) Int(key string) (int, error) {
	v, ok := a[key]
	if !ok {
		return 0, errors.InvalidInput(fmt.Sprintf("%s is required", key))
	}
	n, ok := toInt(v)
	if !ok {
		return 0, errors.InvalidInput(fmt.Sprintf("%s must be a number, got %T", key, v))
	}
	return n, nil
}

// IntOr gets an optional integer argument with a default.
func (a Args) IntOr(key string, defaultVal int) int {
	if n, ok := toInt(a[key]); ok {
		return n
	}
	return defaultVal
}

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		var i int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}
