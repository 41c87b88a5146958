package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path and decodes it with Parse.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes raw into a Config. Scalar values may reference the
// environment as ${VAR} or ${VAR:-default}; "$$" is a literal dollar. Keys
// and comments are never expanded. Keys that no Config field declares are
// rejected. name is only used in error messages.
func Parse(raw []byte, name string) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", name, err)
	}

	var cfg Config
	if doc.Kind == 0 {
		return &cfg, nil
	}

	if err := expandNode(&doc); err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", name, err)
	}
	if err := checkKeys(&doc, reflect.TypeFor[Config](), ""); err != nil {
		return nil, fmt.Errorf("config: %s: %w", name, err)
	}
	if err := doc.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", name, err)
	}
	return &cfg, nil
}

// expandNode substitutes environment references in every scalar value under
// n. Unresolved variables are collected with their line numbers.
func expandNode(n *yaml.Node) error {
	var errs []error
	var walk func(n *yaml.Node, isKey bool)
	walk = func(n *yaml.Node, isKey bool) {
		switch n.Kind {
		case yaml.DocumentNode, yaml.SequenceNode:
			for _, c := range n.Content {
				walk(c, false)
			}
		case yaml.MappingNode:
			for i, c := range n.Content {
				walk(c, i%2 == 0)
			}
		case yaml.ScalarNode:
			if isKey || !strings.Contains(n.Value, "$") {
				return
			}
			value, missing := expandValue(n.Value)
			for _, v := range missing {
				errs = append(errs, fmt.Errorf("line %d: unresolved variable %s", n.Line, v))
			}
			n.Value = value
			if n.Style == 0 {
				// Re-resolve plain scalars so "${N:-3}" decodes into an int.
				n.Tag = ""
			}
		}
	}
	walk(n, false)
	return errors.Join(errs...)
}

// expandValue expands one scalar and returns the names it could not resolve.
// An unresolved reference is left in place.
func expandValue(s string) (string, []string) {
	var (
		b       strings.Builder
		missing []string
	)
	for {
		i := strings.IndexByte(s, '$')
		if i < 0 || i == len(s)-1 {
			b.WriteString(s)
			return b.String(), missing
		}
		b.WriteString(s[:i])
		s = s[i:]

		switch {
		case s[1] == '$':
			b.WriteByte('$')
			s = s[2:]
			continue
		case s[1] != '{':
			b.WriteByte('$')
			s = s[1:]
			continue
		}

		end := strings.IndexByte(s, '}')
		if end < 0 {
			b.WriteString(s)
			return b.String(), missing
		}
		ref := s[2:end]
		name, def, hasDefault := strings.Cut(ref, ":-")
		switch value, ok := os.LookupEnv(name); {
		case !validEnvName(name):
			b.WriteString(s[:end+1])
		case ok:
			b.WriteString(value)
		case hasDefault:
			b.WriteString(def)
		default:
			missing = append(missing, name)
			b.WriteString(s[:end+1])
		}
		s = s[end+1:]
	}
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// checkKeys rejects mapping keys that t does not declare through its yaml
// tags. path is the dotted location of n, for error messages.
func checkKeys(n *yaml.Node, t reflect.Type, path string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return checkKeys(n.Content[0], t, path)
	case yaml.SequenceNode:
		if t.Kind() != reflect.Slice {
			return nil
		}
		for i, c := range n.Content {
			if err := checkKeys(c, t.Elem(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		if t.Kind() != reflect.Struct {
			return nil
		}
		fields := yamlFields(t)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			ft, ok := fields[key.Value]
			if !ok {
				return fmt.Errorf("line %d: unknown key %q", key.Line, joinPath(path, key.Value))
			}
			if err := checkKeys(n.Content[i+1], ft, joinPath(path, key.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// yamlFields maps each yaml key of struct t to its field type, following
// yaml.v3 naming: the tag name, or the lowercased field name.
func yamlFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if strings.Contains(opts, "inline") {
			for k, v := range yamlFields(f.Type) {
				fields[k] = v
			}
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		fields[name] = f.Type
	}
	return fields
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	return out, nil
}
