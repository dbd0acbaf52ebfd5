package openwrt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/core/artifact"
	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/domain/nodeconfig"
	"github.com/artpar/nodecfg/platforms/openwrt"
)

type fixture struct {
	point     *registry.Point
	catalogue *capability.Catalogue
	table     *cgm.Table
}

func setup(t *testing.T) *fixture {
	t.Helper()

	p, err := nodeconfig.Register(registry.New())
	if err != nil {
		t.Fatal(err)
	}
	c := capability.NewCatalogue()
	if err := openwrt.LoadDevices(c, zerolog.Nop()); err != nil {
		t.Fatalf("LoadDevices() error = %v", err)
	}
	if err := nodeconfig.RegisterDevices(p, c); err != nil {
		t.Fatal(err)
	}
	table := cgm.NewTable()
	if err := openwrt.Register(table); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	table.Seal()
	return &fixture{point: p, catalogue: c, table: table}
}

func (f *fixture) tree(t *testing.T, node string, instances ...*tree.Instance) *tree.Tree {
	t.Helper()

	tr := tree.New(f.point, node)
	for _, inst := range instances {
		if _, _, err := tr.Put(inst); err != nil {
			t.Fatalf("Put(%s) error = %v", inst.ID, err)
		}
	}
	return tr
}

func (f *fixture) compile(t *testing.T, tr *tree.Tree, opts ...cgm.CompilerOption) (*artifact.Artifact, error) {
	t.Helper()
	return cgm.NewCompiler(nil, f.catalogue, f.table, opts...).CompileTree(context.Background(), tr)
}

func generalItem(name, router string) *tree.Instance {
	return &tree.Instance{
		Type:   nodeconfig.General,
		ID:     "general",
		Values: map[string]any{"name": name, "platform": openwrt.Platform, "router": router},
	}
}

func radioItem(protocol string, channel int) *tree.Instance {
	return &tree.Instance{
		Type: nodeconfig.WifiRadio,
		ID:   "radio0",
		Values: map[string]any{
			"wifi_radio":        "radio0",
			"protocol":          protocol,
			"channel":           channel,
			"antenna_connector": "a1",
		},
	}
}

var ifaces = tree.Ref{Type: nodeconfig.Interfaces, ID: "radio0"}

func meshItem() *tree.Instance {
	return &tree.Instance{
		Type:   nodeconfig.WifiInterface,
		ID:     "mesh0",
		Parent: &ifaces,
		Values: map[string]any{"mode": "mesh", "essid": "mesh.example.net", "routing_protocol": "olsr"},
	}
}

func wanItem() *tree.Instance {
	return &tree.Instance{
		Type:   nodeconfig.EthernetInterface,
		ID:     "wan",
		Values: map[string]any{"eth_port": "wan0", "uplink": true},
	}
}

func get(t *testing.T, a *artifact.Artifact, path string) any {
	t.Helper()

	v, ok := a.Get(path)
	if !ok {
		t.Fatalf("artifact has no %s", path)
	}
	return v
}

// =============================================================================
// Device descriptors
// =============================================================================

func TestLoadDevices(t *testing.T) {
	f := setup(t)

	radio, err := f.catalogue.Radio(openwrt.Platform, "R1", "radio0")
	if err != nil {
		t.Fatalf("Radio() error = %v", err)
	}
	if diff := cmp.Diff([]string{"g", "n"}, radio.ProtocolCodes()); diff != "" {
		t.Errorf("protocols mismatch (-want +got):\n%s", diff)
	}

	sel, err := radio.SelectProtocol("n")
	if err != nil {
		t.Fatal(err)
	}
	var channels []int
	for _, ch := range sel.Channels(nil) {
		channels = append(channels, ch.Number)
	}
	if diff := cmp.Diff([]int{36, 40, 44, 48}, channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if _, err := sel.SelectChannel(149, nil); !errors.Is(err, capability.ErrInvalidSelection) {
		t.Errorf("SelectChannel(149) error = %v, want ErrInvalidSelection", err)
	}
	if _, err := radio.SelectProtocol("a"); !errors.Is(err, capability.ErrMissingCapability) {
		t.Errorf("SelectProtocol(a) error = %v, want ErrMissingCapability", err)
	}

	fon, err := f.catalogue.Router(openwrt.Platform, "fon-2200")
	if err != nil {
		t.Fatal(err)
	}
	var ports []string
	for _, p := range fon.Ports() {
		ports = append(ports, p.ID)
	}
	if diff := cmp.Diff([]string{"wan0", "lan0"}, ports); diff != "" {
		t.Errorf("fon-2200 ports mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// Compilation
// =============================================================================

func TestCompile_R1(t *testing.T) {
	f := setup(t)
	tr := f.tree(t, "node-1",
		generalItem("node-1", "R1"),
		&tree.Instance{Type: nodeconfig.PasswordAuthentication, ID: "pw", Values: map[string]any{"password": "$2a$10$abcdefghijklmnopqrstuv"}},
		&tree.Instance{Type: nodeconfig.PublicKeyAuthentication, ID: "key", Values: map[string]any{"public_key": "ssh-ed25519 AAAA admin"}},
		wanItem(),
		&tree.Instance{
			Type:   nodeconfig.StaticNetwork,
			ID:     "wan-net",
			Parent: &tree.Ref{Type: nodeconfig.Interfaces, ID: "wan"},
			Values: map[string]any{"family": "ipv4", "address": "10.1.0.2/24", "gateway": "10.1.0.1"},
		},
		radioItem("n", 40),
		meshItem(),
	)

	a, err := f.compile(t, tr)
	if err != nil {
		t.Fatalf("CompileTree() error = %v", err)
	}

	if diff := cmp.Diff([]string{"general", "authentication", "network", "wireless"}, a.Modules); diff != "" {
		t.Errorf("Modules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"system", "dropbear", "network", "olsrd", "wireless"}, a.SectionNames()); diff != "" {
		t.Errorf("SectionNames mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		path string
		want any
	}{
		{"system.system.hostname", "node-1"},
		{"dropbear.main.root_password_hash", "$2a$10$abcdefghijklmnopqrstuv"},
		{"dropbear.main.authorized_keys", []string{"ssh-ed25519 AAAA admin"}},
		{"network.wan.ifname", "wan0"},
		{"network.wan.proto", "static"},
		{"network.wan.ipaddr", "10.1.0.2"},
		{"network.wan.netmask", "255.255.255.0"},
		{"network.wan.gateway", "10.1.0.1"},
		{"network.mesh0.proto", "none"},
		{"olsrd.interfaces.interface", []string{"mesh0"}},
		{"wireless.radio0.hwmode", "11n"},
		{"wireless.radio0.channel", 40},
		{"wireless.radio0.frequency", 5200},
		{"wireless.radio0.antenna", "a1"},
		{"wireless.mesh0.device", "radio0"},
		{"wireless.mesh0.mode", "adhoc"},
		{"wireless.mesh0.ssid", "mesh.example.net"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, get(t, a, tt.path)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.path, diff)
		}
	}
}

func TestCompile_Fon2200Ports(t *testing.T) {
	f := setup(t)
	tr := f.tree(t, "fon",
		generalItem("fon", "fon-2200"),
		wanItem(),
		&tree.Instance{Type: nodeconfig.DHCPNetwork, ID: "wan-dhcp", Parent: &tree.Ref{Type: nodeconfig.Interfaces, ID: "wan"}},
	)

	a, err := f.compile(t, tr)
	if err != nil {
		t.Fatalf("CompileTree() error = %v", err)
	}
	if diff := cmp.Diff([]string{"general", "authentication", "network", "fon-2200.network", "wireless"}, a.Modules); diff != "" {
		t.Errorf("Modules mismatch (-want +got):\n%s", diff)
	}
	if got := get(t, a, "network.wan.ifname"); got != "eth0.1" {
		t.Errorf("wan ifname = %v, want eth0.1", got)
	}
	if got := get(t, a, "network.wan.proto"); got != "dhcp" {
		t.Errorf("wan proto = %v, want dhcp", got)
	}
	if _, ok := a.Get("network.eth0.vlan1"); !ok {
		t.Error("switch configuration missing")
	}
}

func TestCompile_DigitempGate(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name    string
		enabled bool
		want    bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := f.tree(t, "node-1",
				generalItem("node-1", "R1"),
				&tree.Instance{Type: nodeconfig.DigitempPackage, ID: "dt", Values: map[string]any{"enabled": tt.enabled}},
			)
			a, err := f.compile(t, tr)
			if err != nil {
				t.Fatalf("CompileTree() error = %v", err)
			}
			_, ok := a.Get("packages.nodewatcher-digitemp")
			if ok != tt.want {
				t.Errorf("digitemp emitted = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestCompile_CapabilityFailures(t *testing.T) {
	f := setup(t)
	fcc, err := capability.Regulatory("FCC")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		radio   *tree.Instance
		opts    []cgm.CompilerOption
		wantErr error
	}{
		{"channel outside protocol", radioItem("n", 149), nil, capability.ErrInvalidSelection},
		{"unsupported protocol", radioItem("a", 36), nil, capability.ErrMissingCapability},
		{"regulatory domain", radioItem("g", 13), []cgm.CompilerOption{cgm.WithFilter(fcc)}, capability.ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := f.tree(t, "node-1", generalItem("node-1", "R1"), tt.radio)

			a, err := f.compile(t, tr, tt.opts...)
			if a != nil {
				t.Error("partial artifact returned")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CompileTree() error = %v, want %v", err, tt.wantErr)
			}
			var modErr *cgm.ModuleExecutionError
			if !errors.As(err, &modErr) || modErr.Module != "wireless" {
				t.Errorf("error = %v, want a wireless module failure", err)
			}
		})
	}
}

func TestCompile_Deterministic(t *testing.T) {
	f := setup(t)
	build := func() *tree.Tree {
		return f.tree(t, "node-1", generalItem("node-1", "R1"), wanItem(), radioItem("g", 6), meshItem())
	}

	first, err := f.compile(t, build())
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.compile(t, build())
	if err != nil {
		t.Fatal(err)
	}
	if first.Digest != second.Digest {
		t.Errorf("digests differ: %s != %s", first.Digest, second.Digest)
	}
}

func TestCompile_SectionClash(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name   string
		second *tree.Instance
		module string
	}{
		{
			"ethernet interfaces",
			&tree.Instance{Type: nodeconfig.EthernetInterface, ID: "lan.0", Values: map[string]any{"eth_port": "wan0"}},
			"network",
		},
		{
			"wireless and ethernet interfaces",
			&tree.Instance{
				Type:   nodeconfig.WifiInterface,
				ID:     "lan.0",
				Parent: &ifaces,
				Values: map[string]any{"mode": "ap", "essid": "open.example.net"},
			},
			"network",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := f.tree(t, "node-1",
				generalItem("node-1", "R1"),
				&tree.Instance{Type: nodeconfig.EthernetInterface, ID: "lan-0", Values: map[string]any{"eth_port": "lan0"}},
				radioItem("g", 6),
				tt.second,
			)

			a, err := f.compile(t, tr)
			if a != nil {
				t.Error("partial artifact returned")
			}
			if !errors.Is(err, openwrt.ErrSectionClash) {
				t.Fatalf("CompileTree() error = %v, want %v", err, openwrt.ErrSectionClash)
			}
			var modErr *cgm.ModuleExecutionError
			if !errors.As(err, &modErr) || modErr.Module != tt.module {
				t.Errorf("error = %v, want a %s module failure", err, tt.module)
			}
		})
	}
}

func TestCompile_DistinctSections(t *testing.T) {
	f := setup(t)
	tr := f.tree(t, "node-1",
		generalItem("node-1", "R1"),
		&tree.Instance{Type: nodeconfig.EthernetInterface, ID: "lan-0", Values: map[string]any{"eth_port": "lan0"}},
		&tree.Instance{Type: nodeconfig.EthernetInterface, ID: "lan-1", Values: map[string]any{"eth_port": "wan0"}},
	)

	a, err := f.compile(t, tr)
	if err != nil {
		t.Fatalf("CompileTree() error = %v", err)
	}
	if got := get(t, a, "network.lan_0.ifname"); got != "lan0" {
		t.Errorf("lan_0 ifname = %v, want lan0", got)
	}
	if got := get(t, a, "network.lan_1.ifname"); got != "wan0" {
		t.Errorf("lan_1 ifname = %v, want wan0", got)
	}
}
