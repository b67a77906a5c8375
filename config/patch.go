package config

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Patch is a nested override tree using the same keys as the YAML file.
type Patch map[string]any

// ParsePatch decodes a YAML document into a Patch.
func ParsePatch(raw []byte) (Patch, error) {
	p := Patch{}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode override patch")
	}
	return p, nil
}

// Apply returns a new Config with patch deep-merged over c. c itself is not modified.
func (c Config) Apply(patch Patch) (Config, error) {
	tree, err := toTree(c)
	if err != nil {
		return Config{}, errors.Wrap(err, "encode config")
	}
	merged := deepMerge(tree, map[string]any(patch))
	next, err := fromTree(merged)
	if err != nil {
		return Config{}, errors.Wrap(err, "apply override")
	}
	return next, nil
}

// deepMerge returns a fresh map holding src layered over dst. Nested maps merge, other values replace.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = clone(v)
	}
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		dstMap, dstIsMap := asMap(out[k])
		if srcIsMap && dstIsMap {
			out[k] = deepMerge(dstMap, srcMap)
			continue
		}
		out[k] = clone(v)
	}
	return out
}

func clone(v any) any {
	if m, ok := asMap(v); ok {
		return deepMerge(map[string]any{}, m)
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i := range s {
			out[i] = clone(s[i])
		}
		return out
	}
	return v
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Patch:
		return map[string]any(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}
