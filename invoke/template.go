// ABOUTME: Command templates and the argv builder for engine invocations.
// ABOUTME: Substitutes the artifact path and named variables into discrete arguments; no shell is involved.
package invoke

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
)

// ImageVar is the placeholder replaced by the stored artifact path.
const ImageVar = "image"

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrInvalidTemplate is wrapped by every template validation failure.
var ErrInvalidTemplate = errors.New("invalid command template")

// Template names a program and a fixed flag schema. Args, Dir and Env values may
// reference {image} and any key of Vars.
type Template struct {
	Name      string            `yaml:"name"`
	Program   string            `yaml:"program"`
	Args      []string          `yaml:"args"`
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env"`
	Vars      map[string]string `yaml:"vars"`
	Timeout   time.Duration     `yaml:"timeout"`
	EnvPolicy EnvPolicy         `yaml:"env_policy"`
}

// Spec is a fully resolved invocation: program, argv and process settings.
type Spec struct {
	Program   string
	Args      []string
	Dir       string
	Env       map[string]string
	Timeout   time.Duration
	EnvPolicy EnvPolicy
}

// Argv returns the program followed by its arguments.
func (s *Spec) Argv() []string {
	return append([]string{s.Program}, s.Args...)
}

// Clone returns a deep copy so callers can hold a template without sharing maps or slices.
func (t Template) Clone() Template {
	t.Args = slices.Clone(t.Args)
	t.Env = maps.Clone(t.Env)
	t.Vars = maps.Clone(t.Vars)
	return t
}

// Validate checks that the template can produce a spec for any artifact path.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Program) == "" {
		return fmt.Errorf("%w %q: program is empty", ErrInvalidTemplate, t.Name)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("%w %q: timeout must be positive", ErrInvalidTemplate, t.Name)
	}
	switch t.EnvPolicy {
	case "", EnvPolicyInheritCore, EnvPolicyInheritAll, EnvPolicyInheritNone:
	default:
		return fmt.Errorf("%w %q: unknown env policy %q", ErrInvalidTemplate, t.Name, t.EnvPolicy)
	}

	hasImage := false
	for _, arg := range t.Args {
		for _, name := range placeholders(arg) {
			if name == ImageVar {
				hasImage = true
			}
		}
	}
	if !hasImage {
		return fmt.Errorf("%w %q: args never reference {%s}", ErrInvalidTemplate, t.Name, ImageVar)
	}

	// A dry build with a dummy path surfaces unknown placeholders anywhere in the template.
	if _, err := t.Build("/dev/null"); err != nil {
		return err
	}
	return nil
}

// Build resolves the template against a stored artifact path. The path is placed
// into argv elements verbatim, so spaces or shell metacharacters stay literal.
func (t Template) Build(imagePath string) (*Spec, error) {
	if imagePath == "" {
		return nil, fmt.Errorf("%w %q: empty image path", ErrInvalidTemplate, t.Name)
	}
	vars := make(map[string]string, len(t.Vars)+1)
	for k, v := range t.Vars {
		vars[k] = v
	}
	vars[ImageVar] = imagePath

	program, err := expand(t.Program, vars)
	if err != nil {
		return nil, fmt.Errorf("%w %q: program: %v", ErrInvalidTemplate, t.Name, err)
	}

	args := make([]string, 0, len(t.Args))
	for i, arg := range t.Args {
		v, err := expand(arg, vars)
		if err != nil {
			return nil, fmt.Errorf("%w %q: arg %d: %v", ErrInvalidTemplate, t.Name, i, err)
		}
		args = append(args, v)
	}

	dir, err := expand(t.Dir, vars)
	if err != nil {
		return nil, fmt.Errorf("%w %q: dir: %v", ErrInvalidTemplate, t.Name, err)
	}

	var env map[string]string
	if len(t.Env) > 0 {
		env = make(map[string]string, len(t.Env))
		for k, v := range t.Env {
			ev, err := expand(v, vars)
			if err != nil {
				return nil, fmt.Errorf("%w %q: env %s: %v", ErrInvalidTemplate, t.Name, k, err)
			}
			env[k] = ev
		}
	}

	policy := t.EnvPolicy
	if policy == "" {
		policy = EnvPolicyInheritCore
	}

	return &Spec{
		Program:   program,
		Args:      args,
		Dir:       dir,
		Env:       env,
		Timeout:   t.Timeout,
		EnvPolicy: policy,
	}, nil
}

// expand replaces every {name} in s with vars[name]. Substituted values are not
// re-scanned, so a path containing braces cannot inject another variable.
func expand(s string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("unknown placeholder {%s}", missing)
	}
	return out, nil
}

func placeholders(s string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}
