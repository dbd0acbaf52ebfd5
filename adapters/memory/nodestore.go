// Package memory provides in-memory implementations of storage ports.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/ports"
)

type nodeEntry struct {
	node ports.Node
	tree *tree.Tree
}

// NodeStore is an in-memory implementation of ports.NodeStore. Snapshots
// are deep copies taken under the lock; updates mutate a copy and swap it
// in on success.
type NodeStore struct {
	mu    sync.RWMutex
	nodes map[string]*nodeEntry
	point *registry.Point
	clock ports.Clock
}

// NewNodeStore creates an empty store building trees against point.
func NewNodeStore(point *registry.Point, clock ports.Clock) *NodeStore {
	return &NodeStore{
		nodes: make(map[string]*nodeEntry),
		point: point,
		clock: clock,
	}
}

// CreateNode stores a new node.
func (s *NodeStore) CreateNode(ctx context.Context, n ports.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ports.ErrNodeExists, n.ID)
	}
	now := s.clock.Now()
	n.CreatedAt, n.UpdatedAt = now, now
	s.nodes[n.ID] = &nodeEntry{node: n, tree: tree.New(s.point, n.ID)}
	return nil
}

// GetNode retrieves a node by ID.
func (s *NodeStore) GetNode(ctx context.Context, id string) (ports.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.nodes[id]
	if !ok {
		return ports.Node{}, fmt.Errorf("node %s: %w", id, ports.ErrNotFound)
	}
	return e.node, nil
}

// ListNodes returns all nodes ordered by ID.
func (s *NodeStore) ListNodes(ctx context.Context) ([]ports.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ports.Node, 0, len(s.nodes))
	for _, e := range s.nodes {
		result = append(result, e.node)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DeleteNode removes a node and its tree.
func (s *NodeStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, ports.ErrNotFound)
	}
	delete(s.nodes, id)
	return nil
}

// LoadConfigTree returns a private copy of the node's tree.
func (s *NodeStore) LoadConfigTree(ctx context.Context, nodeID string) (*tree.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, ports.ErrNotFound)
	}
	return e.tree.Clone(), nil
}

// LoadGeneral reads the node's general item.
func (s *NodeStore) LoadGeneral(ctx context.Context, nodeID string) (ports.General, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.nodes[nodeID]
	if !ok {
		return ports.General{}, fmt.Errorf("node %s: %w", nodeID, ports.ErrNotFound)
	}
	g, ok := e.tree.Single("core.general")
	if !ok {
		return ports.General{}, fmt.Errorf("general item of node %s: %w", nodeID, ports.ErrNotFound)
	}
	return ports.General{
		Name:     g.GetString("name"),
		Platform: g.GetString("platform"),
		Router:   g.GetString("router"),
		Version:  g.GetString("version"),
	}, nil
}

// Update applies fn to a copy of the tree and keeps the copy if fn
// succeeds.
func (s *NodeStore) Update(ctx context.Context, nodeID string, fn ports.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, ports.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	working := e.tree.Clone()
	if err := fn(working); err != nil {
		return err
	}
	if working.Changes().Empty() {
		return nil
	}
	working.ResetChanges()
	e.tree = working
	e.node.UpdatedAt = s.clock.Now()
	return nil
}

var _ ports.NodeStore = (*NodeStore)(nil)
