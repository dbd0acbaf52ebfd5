package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/adapters/clock"
	"github.com/artpar/nodecfg/adapters/hasher"
	"github.com/artpar/nodecfg/adapters/idgen"
	"github.com/artpar/nodecfg/adapters/memory"
	"github.com/artpar/nodecfg/app"
	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/domain/nodeconfig"
	"github.com/artpar/nodecfg/platforms/openwrt"
	"github.com/artpar/nodecfg/ports"
)

// recorder implements app.EditMetrics and app.Invalidator.
type recorder struct {
	mu          sync.Mutex
	edits       []string
	invalidated []string
}

func (r *recorder) Edit(op string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if !ok {
		result = "error"
	}
	r.edits = append(r.edits, op+":"+result)
}

func (r *recorder) Invalidate(node string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, node)
	return 1
}

func setupService(t *testing.T, opts ...app.ConfigOption) (*app.ConfigService, *recorder) {
	t.Helper()

	p, err := nodeconfig.Register(registry.New())
	if err != nil {
		t.Fatal(err)
	}
	c := capability.NewCatalogue()
	if err := openwrt.LoadDevices(c, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	if err := nodeconfig.RegisterDevices(p, c); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	store := memory.NewNodeStore(p, clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	opts = append([]app.ConfigOption{app.WithEditMetrics(rec), app.WithInvalidator(rec)}, opts...)
	svc := app.NewConfigService(store, p, c, idgen.NewSequential("id"), hasher.Fake{}, zerolog.Nop(), opts...)
	return svc, rec
}

func general(router string) *tree.Instance {
	return &tree.Instance{
		Type:   nodeconfig.General,
		ID:     "general",
		Values: map[string]any{"name": "node-1", "platform": openwrt.Platform, "router": router},
	}
}

func radio(protocol string, channel int, connector string) *tree.Instance {
	return &tree.Instance{
		Type: nodeconfig.WifiRadio,
		ID:   "radio0",
		Values: map[string]any{
			"wifi_radio":        "radio0",
			"protocol":          protocol,
			"channel":           channel,
			"antenna_connector": connector,
		},
	}
}

func TestConfigService_CreateNode(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	n, err := svc.CreateNode(ctx, "", "generated")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if n.ID != "id1" {
		t.Errorf("ID = %s, want id1", n.ID)
	}
	if _, err := svc.CreateNode(ctx, n.ID, "again"); !errors.Is(err, ports.ErrNodeExists) {
		t.Errorf("duplicate CreateNode() error = %v, want ErrNodeExists", err)
	}
}

func TestConfigService_PutItem(t *testing.T) {
	svc, rec := setupService(t)
	ctx := context.Background()
	if _, err := svc.CreateNode(ctx, "node-1", ""); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.PutItem(ctx, "node-1", general("R1")); err != nil {
		t.Fatalf("PutItem(general) error = %v", err)
	}
	stored, _, err := svc.PutItem(ctx, "node-1", &tree.Instance{
		Type:   nodeconfig.EthernetInterface,
		Values: map[string]any{"eth_port": "wan0"},
	})
	if err != nil {
		t.Fatalf("PutItem(ethernet) error = %v", err)
	}
	if stored.ID == "" {
		t.Error("PutItem() did not assign an id")
	}
	if !stored.GetBool("enabled") {
		t.Error("default enabled = true was not applied")
	}

	// Superseding the single general item.
	_, removed, err := svc.PutItem(ctx, "node-1", &tree.Instance{
		Type:   nodeconfig.General,
		ID:     "general-2",
		Values: map[string]any{"name": "renamed", "platform": openwrt.Platform, "router": "R1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]tree.Ref{{Type: nodeconfig.General, ID: "general"}}, removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}

	want := []string{"put:ok", "put:ok", "put:ok"}
	if diff := cmp.Diff(want, rec.edits); diff != "" {
		t.Errorf("edits mismatch (-want +got):\n%s", diff)
	}
	if len(rec.invalidated) != 3 {
		t.Errorf("invalidated %d times, want 3", len(rec.invalidated))
	}
}

func TestConfigService_HashesSecrets(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	if _, err := svc.CreateNode(ctx, "node-1", ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plaintext is hashed", "s3cret", "fake$s3cret"},
		{"hash is kept", "fake$s3cret", "fake$s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &tree.Instance{
				Type:   nodeconfig.PasswordAuthentication,
				ID:     "pw",
				Values: map[string]any{"password": tt.in},
			}
			stored, _, err := svc.PutItem(ctx, "node-1", inst)
			if err != nil {
				t.Fatal(err)
			}
			if got := stored.GetString("password"); got != tt.want {
				t.Errorf("password = %q, want %q", got, tt.want)
			}
			if inst.Values["password"] != tt.in {
				t.Error("caller's values were modified")
			}
		})
	}
}

func TestConfigService_CapabilityValidation(t *testing.T) {
	fcc, err := capability.Regulatory("FCC")
	if err != nil {
		t.Fatal(err)
	}
	svc, rec := setupService(t, app.WithChannelFilter(fcc))
	ctx := context.Background()
	if _, err := svc.CreateNode(ctx, "node-1", ""); err != nil {
		t.Fatal(err)
	}

	// Without a router nothing can be checked.
	if _, _, err := svc.PutItem(ctx, "node-1", radio("g", 6, "")); !errors.Is(err, capability.ErrMissingCapability) {
		t.Fatalf("PutItem() without general error = %v, want ErrMissingCapability", err)
	}
	if _, _, err := svc.PutItem(ctx, "node-1", general("R1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		inst    *tree.Instance
		wantErr error
	}{
		{"valid", radio("n", 36, "a1"), nil},
		{"channel outside protocol", radio("n", 149, ""), capability.ErrInvalidSelection},
		{"unsupported protocol", radio("a", 36, ""), capability.ErrMissingCapability},
		{"regulatory domain", radio("g", 13, ""), capability.ErrInvalidSelection},
		{"unknown connector", radio("g", 6, "a9"), capability.ErrMissingCapability},
		{"port of another router", &tree.Instance{Type: nodeconfig.EthernetInterface, ID: "eth", Values: map[string]any{"eth_port": "eth0"}}, capability.ErrMissingCapability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.PutItem(ctx, "node-1", tt.inst)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("PutItem() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PutItem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejected edits leave the stored radio untouched.
	tr, err := svc.Tree(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	r, err := tr.Resolve(tree.Ref{Type: nodeconfig.Interfaces, ID: "radio0"})
	if err != nil {
		t.Fatal(err)
	}
	if r.GetString("protocol") != "n" || r.GetInt("channel") != 36 {
		t.Errorf("stored radio = %v", r.Values)
	}
	if !strings.HasPrefix(rec.edits[0], "put:error") {
		t.Errorf("first edit = %s, want put:error", rec.edits[0])
	}
}

func TestConfigService_RouterChangeRevalidates(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	if _, err := svc.CreateNode(ctx, "node-1", ""); err != nil {
		t.Fatal(err)
	}
	for _, inst := range []*tree.Instance{general("R1"), radio("n", 40, "")} {
		if _, _, err := svc.PutItem(ctx, "node-1", inst); err != nil {
			t.Fatal(err)
		}
	}

	// fon-2200 has no radio0.
	_, _, err := svc.PutItem(ctx, "node-1", general("fon-2200"))
	if !errors.Is(err, capability.ErrMissingCapability) {
		t.Errorf("PutItem(general fon-2200) error = %v, want ErrMissingCapability", err)
	}
}

func TestConfigService_DeleteItemCascades(t *testing.T) {
	svc, rec := setupService(t)
	ctx := context.Background()
	if _, err := svc.CreateNode(ctx, "node-1", ""); err != nil {
		t.Fatal(err)
	}
	radioRef := tree.Ref{Type: nodeconfig.Interfaces, ID: "radio0"}
	for _, inst := range []*tree.Instance{
		general("R1"),
		radio("g", 6, ""),
		{Type: nodeconfig.WifiInterface, ID: "mesh0", Parent: &radioRef, Values: map[string]any{"mode": "mesh", "essid": "x"}},
	} {
		if _, _, err := svc.PutItem(ctx, "node-1", inst); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := svc.DeleteItem(ctx, "node-1", radioRef)
	if err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want radio and interface", removed)
	}
	tr, _ := svc.Tree(ctx, "node-1")
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}
	if got := rec.edits[len(rec.edits)-1]; got != "delete:ok" {
		t.Errorf("last edit = %s, want delete:ok", got)
	}

	if _, err := svc.DeleteItem(ctx, "node-1", radioRef); !errors.Is(err, tree.ErrUnresolvedReference) {
		t.Errorf("second DeleteItem() error = %v, want ErrUnresolvedReference", err)
	}
}

const fixtureYAML = `
node: node-1
name: Node One
items:
  - type: core.general
    values: {name: node-1, platform: openwrt, router: R1}
  - type: core.interfaces.ethernet
    id: wan
    values: {eth_port: wan0, uplink: true}
  - type: core.interfaces.network.dhcp
    parent: {type: core.interfaces, id: wan}
  - type: core.authentication.password
    values: {password: s3cret}
`

func TestConfigService_Import(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	f, err := app.DecodeFixture(strings.NewReader(fixtureYAML))
	if err != nil {
		t.Fatalf("DecodeFixture() error = %v", err)
	}
	f.AssignIDs(idgen.Derived)

	n, err := svc.Import(ctx, f)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n.Name != "Node One" {
		t.Errorf("Name = %s", n.Name)
	}

	tr, err := svc.Tree(ctx, "node-1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tr.Len())
	}
	pw := tr.OfType(nodeconfig.PasswordAuthentication)
	if len(pw) != 1 || pw[0].GetString("password") != "fake$s3cret" {
		t.Errorf("password instance = %v", pw)
	}
	if pw[0].ID != idgen.Derived("node-1", nodeconfig.PasswordAuthentication, "3") {
		t.Errorf("derived id = %s", pw[0].ID)
	}
}

func TestConfigService_ImportIsAtomic(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	f := &app.Fixture{
		Node: "node-1",
		Items: []app.FixtureItem{
			{Type: nodeconfig.General, ID: "g", Values: map[string]any{"name": "node-1", "platform": "openwrt", "router": "R1"}},
			{Type: nodeconfig.EthernetInterface, ID: "wan", Values: map[string]any{"eth_port": "nope"}},
		},
	}
	if _, err := svc.Import(ctx, f); !errors.Is(err, registry.ErrUnknownChoice) {
		t.Fatalf("Import() error = %v, want ErrUnknownChoice", err)
	}
	if _, err := svc.Tree(ctx, "node-1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("partially imported node kept: %v", err)
	}
}

func TestDecodeFixture_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing node", "items: []"},
		{"item without type", "node: n\nitems:\n  - id: x"},
		{"unknown field", "node: n\nbogus: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := app.DecodeFixture(strings.NewReader(tt.in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
