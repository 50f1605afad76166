// ABOUTME: Small helpers for reading MAMMOSCOPE_* environment variables.
// ABOUTME: Whitespace-only values are treated as unset.
package config

import (
	"os"
	"strings"
)

// nonEmptyEnv returns the trimmed value of key, or "" when unset or blank.
func nonEmptyEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
