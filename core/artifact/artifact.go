// Package artifact is the compiled output of one node: an ordered list of
// named sections, each an ordered mapping of option keys to values.
package artifact

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/artpar/nodecfg/core/buildctx"
	"github.com/artpar/nodecfg/pkg/codec"
)

// GlobalSection collects values written at the root of a build context.
const GlobalSection = "global"

// Entry is one option. Nested namespaces become entries with children.
type Entry struct {
	Key      string  `cbor:"k"`
	Value    any     `cbor:"v"`
	Children Entries `cbor:"c,omitempty"`
}

// Entries is an ordered option list. It renders as an ordered object in
// JSON and YAML.
type Entries []Entry

// Get walks a dotted path through nested entries.
func (es Entries) Get(path string) (any, bool) {
	key, rest, nested := strings.Cut(path, ".")
	for _, e := range es {
		if e.Key != key {
			continue
		}
		if !nested {
			if e.Children != nil {
				return e.Children, true
			}
			return e.Value, true
		}
		return e.Children.Get(rest)
	}
	return nil, false
}

// MarshalJSON writes the entries as a JSON object in order.
func (es Entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range es {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if e.Children != nil {
			val, err = e.Children.MarshalJSON()
		} else {
			val, err = json.Marshal(e.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", e.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML returns an ordered mapping node.
func (es Entries) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range es {
		var val yaml.Node
		var err error
		if e.Children != nil {
			var child any
			child, err = e.Children.MarshalYAML()
			if err == nil {
				val = *child.(*yaml.Node)
			}
		} else {
			err = val.Encode(e.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", e.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&val)
	}
	return node, nil
}

// Section is one named top-level namespace of the output.
type Section struct {
	Name    string  `json:"name" yaml:"name" cbor:"name"`
	Options Entries `json:"options" yaml:"options" cbor:"options"`
}

// Artifact is the compiled document of one node.
type Artifact struct {
	Node     string    `json:"node" yaml:"node" cbor:"node"`
	Platform string    `json:"platform" yaml:"platform" cbor:"platform"`
	Router   string    `json:"router" yaml:"router" cbor:"router"`
	Modules  []string  `json:"modules" yaml:"modules" cbor:"modules"`
	Sections []Section `json:"sections" yaml:"sections" cbor:"sections"`

	// Digest is the hex BLAKE3 digest of the CBOR encoding of the fields
	// above. It is not part of the encoding itself.
	Digest string `json:"digest" yaml:"digest" cbor:"-"`
}

// FromContext converts a completed build context into an artifact. Root
// namespaces become sections in order; plain values written at the root
// are collected into GlobalSection, placed where the first one appeared.
func FromContext(node, platform, router string, modules []string, ctx *buildctx.Context) (*Artifact, error) {
	a := &Artifact{
		Node:     node,
		Platform: platform,
		Router:   router,
		Modules:  append([]string(nil), modules...),
	}

	root := ctx.Root()
	global := -1
	for _, key := range root.Keys() {
		if ns, ok := root.Namespace(key); ok {
			if key == GlobalSection {
				return nil, fmt.Errorf("namespace %q is reserved", GlobalSection)
			}
			a.Sections = append(a.Sections, Section{Name: key, Options: entries(ns)})
			continue
		}
		if global < 0 {
			global = len(a.Sections)
			a.Sections = append(a.Sections, Section{Name: GlobalSection})
		}
		v, _ := root.Get(key)
		a.Sections[global].Options = append(a.Sections[global].Options, Entry{Key: key, Value: v})
	}

	if err := a.Seal(); err != nil {
		return nil, err
	}
	return a, nil
}

func entries(ns *buildctx.Namespace) Entries {
	result := make(Entries, 0, ns.Len())
	for _, key := range ns.Keys() {
		if child, ok := ns.Namespace(key); ok {
			result = append(result, Entry{Key: key, Children: entries(child)})
			continue
		}
		v, _ := ns.Get(key)
		result = append(result, Entry{Key: key, Value: v})
	}
	return result
}

// Section returns a section by name.
func (a *Artifact) Section(name string) (*Section, bool) {
	for i := range a.Sections {
		if a.Sections[i].Name == name {
			return &a.Sections[i], true
		}
	}
	return nil, false
}

// Get reads "section.option[.nested]".
func (a *Artifact) Get(path string) (any, bool) {
	name, rest, ok := strings.Cut(path, ".")
	if !ok {
		return nil, false
	}
	s, found := a.Section(name)
	if !found {
		return nil, false
	}
	return s.Options.Get(rest)
}

// SectionNames returns the section names in order.
func (a *Artifact) SectionNames() []string {
	names := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		names = append(names, s.Name)
	}
	return names
}

// Encode returns the deterministic CBOR encoding of the artifact.
func (a *Artifact) Encode() ([]byte, error) {
	data, err := codec.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", a.Node, err)
	}
	return data, nil
}

// Seal recomputes Digest from the current content.
func (a *Artifact) Seal() error {
	data, err := a.Encode()
	if err != nil {
		return err
	}
	a.Digest = Digest(data)
	return nil
}

// Decode reads an artifact written with Encode and recomputes its digest.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := codec.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	a.Digest = Digest(data)
	return &a, nil
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
