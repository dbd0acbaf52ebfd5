// Package ports defines interfaces (contracts) between layers.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/nodecfg/core/tree"
)

// ErrNotFound is returned when a node does not exist.
var ErrNotFound = errors.New("not found")

// ErrNodeExists is returned when creating a node whose ID is taken.
var ErrNodeExists = errors.New("node already exists")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher hashes secrets stored in node configuration.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool

	// IsHash reports whether s already is an output of Hash.
	IsHash(s string) bool
}

// -----------------------------------------------------------------------------
// Node Store
// -----------------------------------------------------------------------------

// Node is a managed device.
type Node struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// General is the platform selection of a node, read without building the
// full config tree.
type General struct {
	Name     string
	Platform string
	Router   string
	Version  string
}

// Mutation edits a node's config tree inside a store transaction. The
// tree's change log is persisted when the mutation returns nil.
type Mutation func(tr *tree.Tree) error

// NodeStore persists nodes and their config instances.
type NodeStore interface {
	// CreateNode stores a new node with an empty config tree.
	CreateNode(ctx context.Context, n Node) error

	// GetNode retrieves a node by ID.
	GetNode(ctx context.Context, id string) (Node, error)

	// ListNodes returns all nodes ordered by ID.
	ListNodes(ctx context.Context) ([]Node, error)

	// DeleteNode removes a node and its config tree.
	DeleteNode(ctx context.Context, id string) error

	// LoadConfigTree builds the node's config tree from one consistent
	// read of its instances.
	LoadConfigTree(ctx context.Context, nodeID string) (*tree.Tree, error)

	// LoadGeneral reads the node's general item.
	LoadGeneral(ctx context.Context, nodeID string) (General, error)

	// Update loads the tree, applies fn and persists the resulting changes
	// atomically. Concurrent updates of one node are serialized.
	Update(ctx context.Context, nodeID string, fn Mutation) error
}
