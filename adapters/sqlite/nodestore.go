package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/pkg/codec"
	"github.com/artpar/nodecfg/ports"
)

// GeneralItem is the slot read by LoadGeneral.
const GeneralItem = "core.general"

// NodeStore implements ports.NodeStore using SQLite. Config instances are
// stored one row each, the instance itself CBOR-encoded.
type NodeStore struct {
	db    *DB
	point *registry.Point
	clock ports.Clock

	// updates serializes read-modify-write transactions; SQLite allows one
	// writer and a deferred transaction cannot upgrade under contention.
	updates sync.Mutex
}

// NewNodeStore creates a node store building trees against point.
func NewNodeStore(db *DB, point *registry.Point, clock ports.Clock) *NodeStore {
	return &NodeStore{db: db, point: point, clock: clock}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateNode stores a new node.
func (s *NodeStore) CreateNode(ctx context.Context, n ports.Node) error {
	now := s.clock.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		n.ID, n.Name, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ports.ErrNodeExists, n.ID)
		}
		return fmt.Errorf("create node %s: %w", n.ID, err)
	}
	return nil
}

// GetNode retrieves a node by ID.
func (s *NodeStore) GetNode(ctx context.Context, id string) (ports.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Node{}, fmt.Errorf("node %s: %w", id, ports.ErrNotFound)
	}
	return n, err
}

// ListNodes returns all nodes ordered by ID.
func (s *NodeStore) ListNodes(ctx context.Context) ([]ports.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ports.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (ports.Node, error) {
	var n ports.Node
	var createdAt, updatedAt string
	if err := row.Scan(&n.ID, &n.Name, &createdAt, &updatedAt); err != nil {
		return ports.Node{}, err
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	n.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return n, nil
}

// DeleteNode removes a node; its config rows are removed by the foreign
// key cascade.
func (s *NodeStore) DeleteNode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// LoadConfigTree reads all instances of the node in one read transaction.
func (s *NodeStore) LoadConfigTree(ctx context.Context, nodeID string) (*tree.Tree, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	return s.loadTree(ctx, tx, nodeID)
}

func (s *NodeStore) loadTree(ctx context.Context, q querier, nodeID string) (*tree.Tree, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, nodeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", nodeID, ports.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT data FROM config_items WHERE node_id = ? ORDER BY pk`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load config of %s: %w", nodeID, err)
	}
	defer rows.Close()

	var instances []*tree.Instance
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		inst := &tree.Instance{}
		if err := codec.Unmarshal(data, inst); err != nil {
			return nil, fmt.Errorf("decode config item of %s: %w", nodeID, err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tree.Build(s.point, nodeID, instances)
}

// LoadGeneral reads the node's general item without building the tree.
func (s *NodeStore) LoadGeneral(ctx context.Context, nodeID string) (ports.General, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM config_items WHERE node_id = ? AND slot = ? ORDER BY pk DESC LIMIT 1`,
		nodeID, GeneralItem,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.General{}, fmt.Errorf("general item of node %s: %w", nodeID, ports.ErrNotFound)
	}
	if err != nil {
		return ports.General{}, err
	}

	var inst tree.Instance
	if err := codec.Unmarshal(data, &inst); err != nil {
		return ports.General{}, fmt.Errorf("decode general item of %s: %w", nodeID, err)
	}
	return generalOf(&inst), nil
}

func generalOf(inst *tree.Instance) ports.General {
	return ports.General{
		Name:     inst.GetString("name"),
		Platform: inst.GetString("platform"),
		Router:   inst.GetString("router"),
		Version:  inst.GetString("version"),
	}
}

// Update applies fn to the node's tree and writes the resulting changes
// in the same transaction.
func (s *NodeStore) Update(ctx context.Context, nodeID string, fn ports.Mutation) error {
	s.updates.Lock()
	defer s.updates.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	tr, err := s.loadTree(ctx, tx, nodeID)
	if err != nil {
		return err
	}
	if err := fn(tr); err != nil {
		return err
	}

	changes := tr.Changes()
	if changes.Empty() {
		return nil
	}

	for _, ref := range changes.Deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM config_items WHERE node_id = ? AND slot = ? AND id = ?`,
			nodeID, ref.Type, ref.ID,
		); err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
	}

	for _, inst := range changes.Put {
		if err := putItem(ctx, tx, nodeID, inst); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE nodes SET updated_at = ? WHERE id = ?`,
		s.clock.Now().UTC().Format(time.RFC3339Nano), nodeID,
	); err != nil {
		return fmt.Errorf("touch node %s: %w", nodeID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update of %s: %w", nodeID, err)
	}
	return nil
}

func putItem(ctx context.Context, tx *sql.Tx, nodeID string, inst *tree.Instance) error {
	data, err := codec.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode %s: %w", inst.Ref(), err)
	}

	var parentSlot, parentID sql.NullString
	if inst.Parent != nil {
		parentSlot = sql.NullString{String: inst.Parent.Type, Valid: true}
		parentID = sql.NullString{String: inst.Parent.ID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO config_items (node_id, slot, id, type, parent_slot, parent_id, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id, slot, id) DO UPDATE SET
			type = excluded.type,
			parent_slot = excluded.parent_slot,
			parent_id = excluded.parent_id,
			data = excluded.data`,
		nodeID, inst.Slot(), inst.ID, inst.Type, parentSlot, parentID, data,
	)
	if err != nil {
		return fmt.Errorf("store %s: %w", inst.Ref(), err)
	}
	return nil
}

var _ ports.NodeStore = (*NodeStore)(nil)
