// ABOUTME: Environment inheritance policies for engine child processes.
// ABOUTME: The default policy passes the parent environment through minus credential-looking variables.
package invoke

import (
	"os"
	"sort"
	"strings"
)

// EnvPolicy controls how environment variables are inherited by child processes.
type EnvPolicy string

const (
	// EnvPolicyInheritCore inherits the parent environment minus sensitive variables (default).
	EnvPolicyInheritCore EnvPolicy = "inherit_core"
	// EnvPolicyInheritAll inherits all environment variables without filtering.
	EnvPolicyInheritAll EnvPolicy = "inherit_all"
	// EnvPolicyInheritNone starts with a clean environment, only explicit vars.
	EnvPolicyInheritNone EnvPolicy = "inherit_none"
)

// sensitivePatterns are env var name suffixes that are excluded under InheritCore.
var sensitivePatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeVarNames are always passed through under InheritCore.
var safeVarNames = map[string]bool{
	"PATH":   true,
	"HOME":   true,
	"USER":   true,
	"LANG":   true,
	"TMPDIR": true,
}

// buildEnv returns the child environment for policy with explicit overrides applied.
// Overrides are appended in sorted key order so the result is deterministic.
func buildEnv(policy EnvPolicy, parent []string, explicit map[string]string) []string {
	var env []string
	switch policy {
	case EnvPolicyInheritAll:
		env = append(env, parent...)
	case EnvPolicyInheritNone:
	default:
		for _, entry := range parent {
			name, _, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			if safeVarNames[name] || !isSensitiveVar(name) {
				env = append(env, entry)
			}
		}
	}

	keys := make([]string, 0, len(explicit))
	for k := range explicit {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if policy != EnvPolicyInheritAll && policy != EnvPolicyInheritNone && isSensitiveVar(k) {
			continue
		}
		env = append(env, k+"="+explicit[k])
	}
	return env
}

func processEnv(policy EnvPolicy, explicit map[string]string) []string {
	return buildEnv(policy, os.Environ(), explicit)
}

// isSensitiveVar checks if a variable name matches sensitive patterns (case-insensitive).
func isSensitiveVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitivePatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}
