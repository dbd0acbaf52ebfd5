package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/artpar/nodecfg/adapters/clock"
	"github.com/artpar/nodecfg/adapters/sqlite"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/schema"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "nodecfg-test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run is a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	return db
}

func setupPoint(t *testing.T) *registry.Point {
	t.Helper()

	p, err := registry.New().RegisterPoint("node", "node.config")
	if err != nil {
		t.Fatal(err)
	}
	steps := []func() error{
		func() error {
			_, err := p.RegisterItem(registry.Descriptor{
				ID:    "core.general",
				Order: 1,
				Fields: []schema.Field{
					{Name: "name", Type: schema.FieldTypeString},
					{Name: "platform", Type: schema.FieldTypeString},
					{Name: "router", Type: schema.FieldTypeString},
				},
			})
			return err
		},
		func() error {
			_, err := p.RegisterItem(registry.Descriptor{
				ID:           "core.interfaces",
				Multiplicity: registry.Multiple,
				Order:        2,
				Fields:       []schema.Field{{Name: "eth_port", Type: schema.FieldTypeString}},
			})
			return err
		},
		func() error {
			_, err := p.RegisterSubitem("core.interfaces", registry.Descriptor{
				ID:           "core.interfaces.limits",
				Multiplicity: registry.Multiple,
				Order:        3,
				Fields:       []schema.Field{{Name: "limit_out", Type: schema.FieldTypeInt}},
			})
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("registration error = %v", err)
		}
	}
	return p
}

func setupStore(t *testing.T) (*sqlite.NodeStore, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return sqlite.NewNodeStore(setupTestDB(t), setupPoint(t), clk), clk
}

func put(inst *tree.Instance) ports.Mutation {
	return func(tr *tree.Tree) error {
		_, _, err := tr.Put(inst)
		return err
	}
}

// -----------------------------------------------------------------------------
// Nodes
// -----------------------------------------------------------------------------

func TestNodeStore_CreateAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.CreateNode(ctx, ports.Node{ID: "node-b", Name: "Bravo"}); err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if err := store.CreateNode(ctx, ports.Node{ID: "node-a", Name: "Alpha"}); err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	got, err := store.GetNode(ctx, "node-b")
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if got.Name != "Bravo" {
		t.Errorf("Name = %s, want Bravo", got.Name)
	}
	if !got.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}

	if err := store.CreateNode(ctx, ports.Node{ID: "node-a"}); !errors.Is(err, ports.ErrNodeExists) {
		t.Errorf("duplicate CreateNode() error = %v, want ErrNodeExists", err)
	}
	if _, err := store.GetNode(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetNode(missing) error = %v, want ErrNotFound", err)
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{"node-a", "node-b"}, ids); diff != "" {
		t.Errorf("ListNodes() mismatch (-want +got):\n%s", diff)
	}
}

// -----------------------------------------------------------------------------
// Config trees
// -----------------------------------------------------------------------------

func TestNodeStore_UpdateRoundTrip(t *testing.T) {
	store, clk := setupStore(t)
	ctx := context.Background()

	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}

	mutations := []ports.Mutation{
		put(&tree.Instance{Type: "core.general", ID: "g1", Values: map[string]any{"name": "first", "platform": "openwrt", "router": "R1"}}),
		put(&tree.Instance{Type: "core.interfaces", ID: "eth0", Values: map[string]any{"eth_port": "wan"}}),
		put(&tree.Instance{
			Type:   "core.interfaces.limits",
			ID:     "lim0",
			Parent: &tree.Ref{Type: "core.interfaces", ID: "eth0"},
			Values: map[string]any{"limit_out": 1024},
		}),
		// Supersedes g1.
		put(&tree.Instance{Type: "core.general", ID: "g2", Values: map[string]any{"name": "second", "platform": "openwrt", "router": "R1"}}),
	}
	for i, m := range mutations {
		clk.Advance(time.Minute)
		if err := store.Update(ctx, "node-1", m); err != nil {
			t.Fatalf("Update(%d) error = %v", i, err)
		}
	}

	tr, err := store.LoadConfigTree(ctx, "node-1")
	if err != nil {
		t.Fatalf("LoadConfigTree() error = %v", err)
	}

	var refs []string
	for _, inst := range tr.All() {
		refs = append(refs, inst.Ref().String())
	}
	want := []string{"core.general/g2", "core.interfaces/eth0", "core.interfaces.limits/lim0"}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("stored instances mismatch (-want +got):\n%s", diff)
	}

	lim, err := tr.Resolve(tree.Ref{Type: "core.interfaces.limits", ID: "lim0"})
	if err != nil {
		t.Fatal(err)
	}
	if lim.GetInt("limit_out") != 1024 {
		t.Errorf("limit_out = %v, want 1024", lim.Value("limit_out"))
	}

	general, err := store.LoadGeneral(ctx, "node-1")
	if err != nil {
		t.Fatalf("LoadGeneral() error = %v", err)
	}
	if diff := cmp.Diff(ports.General{Name: "second", Platform: "openwrt", Router: "R1"}, general); diff != "" {
		t.Errorf("LoadGeneral() mismatch (-want +got):\n%s", diff)
	}

	n, err := store.GetNode(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	if !n.UpdatedAt.After(n.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", n.UpdatedAt, n.CreatedAt)
	}
}

func TestNodeStore_UpdateDeleteCascades(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}
	err := store.Update(ctx, "node-1", func(tr *tree.Tree) error {
		for _, inst := range []*tree.Instance{
			{Type: "core.interfaces", ID: "eth0"},
			{Type: "core.interfaces", ID: "eth1"},
			{Type: "core.interfaces.limits", ID: "lim0", Parent: &tree.Ref{Type: "core.interfaces", ID: "eth0"}},
		} {
			if _, _, err := tr.Put(inst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	err = store.Update(ctx, "node-1", func(tr *tree.Tree) error {
		_, err := tr.Delete(tree.Ref{Type: "core.interfaces", ID: "eth0"})
		return err
	})
	if err != nil {
		t.Fatalf("Update(delete) error = %v", err)
	}

	tr, err := store.LoadConfigTree(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}
	if _, err := tr.Resolve(tree.Ref{Type: "core.interfaces", ID: "eth1"}); err != nil {
		t.Errorf("eth1 missing: %v", err)
	}
}

func TestNodeStore_UpdateRollsBack(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, "node-1", func(tr *tree.Tree) error {
		if _, _, err := tr.Put(&tree.Instance{Type: "core.interfaces", ID: "eth0"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	tr, err := store.LoadConfigTree(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 0 {
		t.Errorf("failed mutation was persisted: Len() = %d", tr.Len())
	}
}

func TestNodeStore_Missing(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if _, err := store.LoadConfigTree(ctx, "ghost"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("LoadConfigTree() error = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, "ghost", put(&tree.Instance{Type: "core.interfaces", ID: "eth0"})); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if _, err := store.LoadGeneral(ctx, "ghost"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("LoadGeneral() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteNode(ctx, "ghost"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("DeleteNode() error = %v, want ErrNotFound", err)
	}
}

func TestNodeStore_DeleteNode(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(ctx, "node-1", put(&tree.Instance{Type: "core.interfaces", ID: "eth0"})); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteNode(ctx, "node-1"); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}

	// Recreating the node starts from an empty tree.
	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}
	tr, err := store.LoadConfigTree(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len() = %d after recreate, want 0", tr.Len())
	}
}
