package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseSet turns "dotted.key=value" assignments into a Patch.
// Values are decoded as YAML scalars, so "40", "true" and "[1,2]" keep their types.
func ParseSet(assignments []string) (Patch, error) {
	patch := Patch{}
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set provided, expected key=value: %q", a)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid --set value for %s: %w", key, err)
		}

		parts := strings.Split(key, ".")
		node := map[string]any(patch)
		for _, p := range parts[:len(parts)-1] {
			next, ok := node[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[p] = next
			}
			node = next
		}
		node[parts[len(parts)-1]] = value
	}
	return patch, nil
}
