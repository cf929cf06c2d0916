// Package template renders node start commands by substituting
// {{name}} placeholders in command argument templates.
//
// The substitution language is deliberately tiny: literal replacement
// only, no nesting, no conditionals, no escaping. Placeholders that
// cannot be resolved are a hard error so a node is never launched with
// a malformed argument list.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// UnresolvedPlaceholderError reports a template referencing a variable
// that is not in the caller's mapping.
type UnresolvedPlaceholderError struct {
	Template string
	Name     string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder {{%s}} in template %q", e.Name, e.Template)
}

// Render substitutes every {{name}} occurrence in each argument template
// with the mapped value, preserving argument order. List-valued
// variables must be pre-joined (comma-separated) by the caller.
//
// If any template references a name absent from vars, Render returns a
// *UnresolvedPlaceholderError and no output at all, so a partial
// substitution can never leak into a launched command.
func Render(args []string, vars map[string]string) ([]string, error) {
	// Validate the whole batch before substituting anything.
	for _, arg := range args {
		for _, match := range placeholderPattern.FindAllStringSubmatch(arg, -1) {
			if _, ok := vars[match[1]]; !ok {
				return nil, &UnresolvedPlaceholderError{Template: arg, Name: match[1]}
			}
		}
	}

	rendered := make([]string, len(args))
	for i, arg := range args {
		out := arg
		for name, value := range vars {
			out = strings.ReplaceAll(out, "{{"+name+"}}", value)
		}
		rendered[i] = out
	}
	return rendered, nil
}

// Names returns the distinct placeholder names referenced by the
// argument templates, in order of first appearance.
func Names(args []string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, arg := range args {
		for _, match := range placeholderPattern.FindAllStringSubmatch(arg, -1) {
			if !seen[match[1]] {
				seen[match[1]] = true
				names = append(names, match[1])
			}
		}
	}
	return names
}
