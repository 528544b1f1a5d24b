package externals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Descriptor describes a dependency on a Dojo 1 module, project, or layer file
// that is loaded at run time instead of being bundled.
type Descriptor struct {
	// Main is the file to load when the dependency is a folder.
	Main string `json:"main,omitempty" yaml:"main,omitempty" mapstructure:"main"`
	// HasLoader marks the dependency that supplies the AMD loader. Without one, an
	// unbuilt Dojo loader is copied from node_modules/dojo.
	HasLoader bool `json:"hasLoader,omitempty" yaml:"hasLoader,omitempty" mapstructure:"hasLoader"`
	// Packages lists the AMD packages this dependency defines. Imports of these
	// packages are left external by the bundle.
	Packages []string `json:"packages,omitempty" yaml:"packages,omitempty" mapstructure:"packages"`
	// To relocates the dependency under the externals folder.
	To string `json:"to,omitempty" yaml:"to,omitempty" mapstructure:"to"`
	// FetchImmediately requires the dependency from the bootstrap script, which is
	// useful for layer files whose modules must be available up front.
	FetchImmediately bool `json:"fetchImmediately,omitempty" yaml:"fetchImmediately,omitempty" mapstructure:"fetchImmediately"`
	LoadImmediately  bool `json:"loadImmediately,omitempty" yaml:"loadImmediately,omitempty" mapstructure:"loadImmediately"`
}

// Eager reports whether the dependency is fetched by the bootstrap script.
func (d Descriptor) Eager() bool {
	return d.FetchImmediately || d.LoadImmediately
}

// Normalize turns a raw dependency declaration into a Descriptor. A declaration is
// either `true`, a list of package names, or a descriptor object. Anything it
// does not understand becomes the empty descriptor.
func Normalize(raw any) Descriptor {
	switch v := raw.(type) {
	case Descriptor:
		return v
	case *Descriptor:
		if v == nil {
			return Descriptor{}
		}
		return *v
	case bool:
		return Descriptor{}
	case []string:
		return Descriptor{Packages: append([]string(nil), v...)}
	case []any:
		packages := make([]string, 0, len(v))
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return Descriptor{}
			}
			packages = append(packages, s)
		}
		return Descriptor{Packages: packages}
	case map[string]any:
		var d Descriptor
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &d,
		})
		if err != nil {
			return Descriptor{}
		}
		if err := decoder.Decode(v); err != nil {
			return Descriptor{}
		}
		return d
	}

	return Descriptor{}
}

type Dependency struct {
	Key        string
	Descriptor Descriptor
}

// DependencySet is an insertion ordered collection of normalized dependencies.
// Order matters: the first loader-carrying dependency wins and eager module ids
// are listed in declaration order.
type DependencySet struct {
	deps  []Dependency
	index map[string]int
}

func NewDependencySet() *DependencySet {
	return &DependencySet{index: make(map[string]int)}
}

// Add normalizes raw and stores it under key. Re-adding a key replaces its
// descriptor but keeps its original position.
func (s *DependencySet) Add(key string, raw any) {
	if s.index == nil {
		s.index = make(map[string]int)
	}

	d := Normalize(raw)
	if i, ok := s.index[key]; ok {
		s.deps[i].Descriptor = d
		return
	}

	s.index[key] = len(s.deps)
	s.deps = append(s.deps, Dependency{Key: key, Descriptor: d})
}

func (s *DependencySet) Get(key string) (Descriptor, bool) {
	if s == nil {
		return Descriptor{}, false
	}
	i, ok := s.index[key]
	if !ok {
		return Descriptor{}, false
	}
	return s.deps[i].Descriptor, true
}

func (s *DependencySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.deps)
}

func (s *DependencySet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.deps))
	for i, d := range s.deps {
		keys[i] = d.Key
	}
	return keys
}

// Dependencies returns a copy of the set in insertion order.
func (s *DependencySet) Dependencies() []Dependency {
	if s == nil {
		return nil
	}
	return append([]Dependency(nil), s.deps...)
}

// FromAny fills the set from a generically decoded value. Maps carry no order
// so their keys are added sorted; a list of tables with a `name` field keeps
// the list order.
func (s *DependencySet) FromAny(v any) error {
	switch raw := v.(type) {
	case nil:
		return nil
	case map[string]any:
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.Add(k, raw[k])
		}
		return nil
	case []any:
		for i, entry := range raw {
			table, ok := entry.(map[string]any)
			if !ok {
				return fmt.Errorf("externals[%d]: expected a table, got %T", i, entry)
			}
			name, ok := table["name"].(string)
			if !ok || name == "" {
				return fmt.Errorf("externals[%d]: missing name", i)
			}
			rest := make(map[string]any, len(table))
			for k, v := range table {
				if k != "name" {
					rest[k] = v
				}
			}
			if len(rest) == 0 {
				s.Add(name, true)
				continue
			}
			s.Add(name, rest)
		}
		return nil
	case []map[string]any:
		list := make([]any, len(raw))
		for i := range raw {
			list[i] = raw[i]
		}
		return s.FromAny(list)
	}

	return fmt.Errorf("externals: unsupported declaration %T", v)
}

func (s *DependencySet) UnmarshalJSON(data []byte) error {
	*s = DependencySet{index: make(map[string]int)}

	decoder := json.NewDecoder(bytes.NewReader(data))
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("externals: expected an object, got %v", tok)
	}

	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("externals: unexpected key %v", tok)
		}

		var value any
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("externals[%q]: %w", key, err)
		}
		s.Add(key, value)
	}

	_, err = decoder.Token()
	return err
}

func (s *DependencySet) UnmarshalYAML(node *yaml.Node) error {
	*s = DependencySet{index: make(map[string]int)}

	if node.Kind == yaml.SequenceNode {
		var list []any
		if err := node.Decode(&list); err != nil {
			return err
		}
		return s.FromAny(list)
	}

	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("externals: expected a mapping at line %d", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value

		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("externals[%q]: %w", key, err)
		}
		s.Add(key, value)
	}

	return nil
}
