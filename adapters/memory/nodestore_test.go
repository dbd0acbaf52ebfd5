package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artpar/nodecfg/adapters/clock"
	"github.com/artpar/nodecfg/adapters/memory"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/schema"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/ports"
)

func newStore(t *testing.T) *memory.NodeStore {
	t.Helper()

	p, err := registry.New().RegisterPoint("node", "node.config")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.RegisterItem(registry.Descriptor{
		ID: "core.general",
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldTypeString},
			{Name: "platform", Type: schema.FieldTypeString},
			{Name: "router", Type: schema.FieldTypeString},
		},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.RegisterItem(registry.Descriptor{
		ID:           "core.interfaces",
		Multiplicity: registry.Multiple,
	}); err != nil {
		t.Fatal(err)
	}

	clk := clock.NewStepping(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	return memory.NewNodeStore(p, clk)
}

func TestNodeStore_Lifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.CreateNode(ctx, ports.Node{ID: "node-1", Name: "one"}); err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); !errors.Is(err, ports.ErrNodeExists) {
		t.Errorf("duplicate CreateNode() error = %v, want ErrNodeExists", err)
	}
	if _, err := store.LoadGeneral(ctx, "node-1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("LoadGeneral() on empty tree error = %v, want ErrNotFound", err)
	}

	err := store.Update(ctx, "node-1", func(tr *tree.Tree) error {
		_, _, err := tr.Put(&tree.Instance{
			Type:   "core.general",
			ID:     "g",
			Values: map[string]any{"name": "one", "platform": "openwrt", "router": "R1"},
		})
		return err
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	g, err := store.LoadGeneral(ctx, "node-1")
	if err != nil {
		t.Fatalf("LoadGeneral() error = %v", err)
	}
	if g.Platform != "openwrt" || g.Router != "R1" {
		t.Errorf("LoadGeneral() = %+v", g)
	}

	n, _ := store.GetNode(ctx, "node-1")
	if !n.UpdatedAt.After(n.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", n.UpdatedAt, n.CreatedAt)
	}

	if err := store.DeleteNode(ctx, "node-1"); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	if _, err := store.LoadConfigTree(ctx, "node-1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("LoadConfigTree() after delete error = %v, want ErrNotFound", err)
	}
}

func TestNodeStore_SnapshotIsPrivate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}

	snap, err := store.LoadConfigTree(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := snap.Put(&tree.Instance{Type: "core.interfaces", ID: "eth0"}); err != nil {
		t.Fatal(err)
	}

	again, _ := store.LoadConfigTree(ctx, "node-1")
	if again.Len() != 0 {
		t.Errorf("mutating a snapshot changed the store: Len() = %d", again.Len())
	}
}

func TestNodeStore_FailedUpdateDiscarded(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}

	err := store.Update(ctx, "node-1", func(tr *tree.Tree) error {
		if _, _, err := tr.Put(&tree.Instance{Type: "core.interfaces", ID: "eth0"}); err != nil {
			return err
		}
		return errors.New("rejected")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	tr, _ := store.LoadConfigTree(ctx, "node-1")
	if tr.Len() != 0 {
		t.Errorf("failed update was kept: Len() = %d", tr.Len())
	}
}

// Readers never observe half of an update that stores two instances.
func TestNodeStore_ConsistentSnapshots(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.CreateNode(ctx, ports.Node{ID: "node-1"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			err := store.Update(ctx, "node-1", func(tr *tree.Tree) error {
				for _, suffix := range []string{"a", "b"} {
					inst := &tree.Instance{Type: "core.interfaces", ID: fmt.Sprintf("if%d%s", i, suffix)}
					if _, _, err := tr.Put(inst); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Errorf("Update() error = %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		tr, err := store.LoadConfigTree(ctx, "node-1")
		if err != nil {
			t.Fatal(err)
		}
		if tr.Len()%2 != 0 {
			t.Fatalf("snapshot holds %d instances, want an even count", tr.Len())
		}
	}
	wg.Wait()
}
