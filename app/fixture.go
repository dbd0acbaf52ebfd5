package app

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/artpar/nodecfg/core/tree"
)

// Fixture is a node with its config items, as written in YAML:
//
//	node: node-1
//	name: Node One
//	items:
//	  - type: core.general
//	    values: {name: node-1, platform: openwrt, router: R1}
//	  - type: core.interfaces.ethernet
//	    id: wan
//	    values: {eth_port: wan0}
type Fixture struct {
	Node  string        `yaml:"node"`
	Name  string        `yaml:"name"`
	Items []FixtureItem `yaml:"items"`
}

// FixtureItem is one config instance of a fixture.
type FixtureItem struct {
	Type   string              `yaml:"type"`
	ID     string              `yaml:"id"`
	Parent *tree.Ref           `yaml:"parent,omitempty"`
	Values map[string]any      `yaml:"values,omitempty"`
	Refs   map[string]tree.Ref `yaml:"refs,omitempty"`
}

// Instance converts the item into a tree instance.
func (i FixtureItem) Instance() *tree.Instance {
	return &tree.Instance{
		Type:   i.Type,
		ID:     i.ID,
		Parent: i.Parent,
		Values: i.Values,
		Refs:   i.Refs,
	}
}

// DecodeFixture reads a YAML fixture.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if f.Node == "" {
		return nil, fmt.Errorf("decode fixture: node is required")
	}
	for i, item := range f.Items {
		if item.Type == "" {
			return nil, fmt.Errorf("decode fixture: item %d has no type", i)
		}
	}
	return &f, nil
}

// AssignIDs fills empty item IDs using derive(node, type, index).
func (f *Fixture) AssignIDs(derive func(node, typeID, key string) string) {
	for i := range f.Items {
		if f.Items[i].ID == "" {
			f.Items[i].ID = derive(f.Node, f.Items[i].Type, fmt.Sprint(i))
		}
	}
}
