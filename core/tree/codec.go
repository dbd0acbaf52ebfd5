package tree

import (
	"fmt"

	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/pkg/codec"
)

// snapshot is the encoded form of a tree.
type snapshot struct {
	Version   int         `cbor:"v"`
	Node      string      `cbor:"node"`
	Instances []*Instance `cbor:"items"`
}

const snapshotVersion = 1

// Encode returns the deterministic CBOR encoding of the tree. Instances
// are written in insertion order, which Decode restores, so trees holding
// the same instances in a different order encode to different bytes.
func (t *Tree) Encode() ([]byte, error) {
	s := snapshot{Version: snapshotVersion, Node: t.Node, Instances: t.ordered()}

	data, err := codec.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode tree %s: %w", t.Node, err)
	}
	return data, nil
}

// Decode rebuilds a tree encoded with Encode. Links are re-validated.
func Decode(point *registry.Point, data []byte) (*Tree, error) {
	var s snapshot
	if err := codec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("decode tree: unsupported snapshot version %d", s.Version)
	}
	return Build(point, s.Node, s.Instances)
}
