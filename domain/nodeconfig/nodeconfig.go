// Package nodeconfig registers the node configuration schema: the item
// types and choices of the "node.config" registry point.
package nodeconfig

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/schema"
)

// Registry point.
const (
	PointName = "node.config"
	RootKind  = "node"
)

// Item types.
const (
	General = "core.general"

	Authentication          = "core.authentication"
	PasswordAuthentication  = "core.authentication.password"
	PublicKeyAuthentication = "core.authentication.publickey"

	Packages        = "core.packages"
	DigitempPackage = "core.packages.digitemp"

	Interfaces        = "core.interfaces"
	EthernetInterface = "core.interfaces.ethernet"
	WifiRadio         = "core.interfaces.wifi_radio"
	WifiInterface     = "core.interfaces.wifi"
	VpnInterface      = "core.interfaces.vpn"

	Network          = "core.interfaces.network"
	StaticNetwork    = "core.interfaces.network.static"
	DHCPNetwork      = "core.interfaces.network.dhcp"
	AllocatedNetwork = "core.interfaces.network.allocated"
	PPPoENetwork     = "core.interfaces.network.pppoe"
	VpnServerNetwork = "core.interfaces.network.vpn"

	Limits           = "core.interfaces.limits"
	ThroughputLimits = "core.interfaces.limits.throughput"
)

// Choice keys.
const (
	ChoicePlatform        = "core.general#platform"
	ChoiceRouter          = "core.general#router"
	ChoiceWifiMode        = "core.interfaces#wifi_mode"
	ChoiceEthPort         = "core.interfaces#eth_port"
	ChoiceWifiRadio       = "core.interfaces#wifi_radio"
	ChoiceVpnProtocol     = "core.interfaces#vpn_protocol"
	ChoiceRoutingProtocol = "core.interfaces#routing_protocol"
	ChoiceIPFamily        = "core.interfaces.network#ip_family"
	ChoiceAnnounce        = "core.interfaces.network#routing_announce"
	ChoiceSpeeds          = "core.interfaces.limits#speeds"
)

// ErrInvalidNetwork is returned by the static network clean hook.
var ErrInvalidNetwork = errors.New("invalid network configuration")

var choices = []struct {
	key, value, label string
}{
	{ChoiceWifiMode, "mesh", "Mesh"},
	{ChoiceWifiMode, "ap", "AP"},
	{ChoiceWifiMode, "sta", "STA"},
	{ChoiceIPFamily, "ipv4", "IPv4"},
	{ChoiceIPFamily, "ipv6", "IPv6"},
	{ChoiceVpnProtocol, "openvpn", "OpenVPN"},
	{ChoiceRoutingProtocol, "olsr", "OLSR"},
	{ChoiceAnnounce, "olsr", "OLSR HNA"},
	{ChoiceSpeeds, "128kbit", "128 Kbit/s"},
	{ChoiceSpeeds, "256kbit", "256 Kbit/s"},
	{ChoiceSpeeds, "512kbit", "512 Kbit/s"},
	{ChoiceSpeeds, "1mbit", "1 Mbit/s"},
	{ChoiceSpeeds, "2mbit", "2 Mbit/s"},
	{ChoiceSpeeds, "4mbit", "4 Mbit/s"},
}

var routingProtocol = schema.Field{Name: "routing_protocol", Type: schema.FieldTypeChoice, Choice: ChoiceRoutingProtocol}

// Register creates the node.config point on reg and registers the item
// types and static choices.
func Register(reg *registry.Registry) (*registry.Point, error) {
	p, err := reg.RegisterPoint(RootKind, PointName)
	if err != nil {
		return nil, err
	}

	for _, c := range choices {
		if err := p.RegisterChoice(c.key, c.value, c.label); err != nil {
			return nil, err
		}
	}

	steps := []struct {
		parent string
		d      registry.Descriptor
	}{
		{d: registry.Descriptor{
			ID:      General,
			Name:    "General Configuration",
			Section: "General",
			Fields: []schema.Field{
				{Name: "name", Label: "Node Name", Type: schema.FieldTypeString, Required: true,
					Constraints: []schema.Constraint{
						schema.MaxLength(30),
						schema.Pattern(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`, "must be a valid hostname"),
					}},
				{Name: "platform", Type: schema.FieldTypeChoice, Choice: ChoicePlatform},
				{Name: "router", Type: schema.FieldTypeChoice, Choice: ChoiceRouter},
				{Name: "version", Type: schema.FieldTypeString, Constraints: []schema.Constraint{schema.MaxLength(20)}},
			},
		}},

		{d: registry.Descriptor{
			ID: Authentication, Name: "Basic Authentication", Section: "Authentication",
			Multiplicity: registry.Multiple, Hidden: true, Order: 10,
		}},
		{d: registry.Descriptor{
			ID: PasswordAuthentication, Extends: Authentication, Name: "Password",
			Fields: []schema.Field{{Name: "password", Type: schema.FieldTypeSecret, Required: true}},
		}},
		{d: registry.Descriptor{
			ID: PublicKeyAuthentication, Extends: Authentication, Name: "Public Key",
			Fields: []schema.Field{{Name: "public_key", Type: schema.FieldTypeText, Required: true}},
		}},

		{d: registry.Descriptor{
			ID: Interfaces, Name: "Generic Interface", Section: "Network Interface Configuration",
			Multiplicity: registry.Multiple, Hidden: true, Order: 50,
			Fields: []schema.Field{{Name: "enabled", Type: schema.FieldTypeBool, Default: true}},
		}},
		{d: registry.Descriptor{
			ID: EthernetInterface, Extends: Interfaces, Name: "Ethernet Interface",
			Fields: []schema.Field{
				{Name: "eth_port", Type: schema.FieldTypeChoice, Choice: ChoiceEthPort, Required: true},
				{Name: "uplink", Type: schema.FieldTypeBool, Default: false},
				routingProtocol,
			},
		}},
		{d: registry.Descriptor{
			ID: WifiRadio, Extends: Interfaces, Name: "Wireless Radio",
			Fields: []schema.Field{
				{Name: "wifi_radio", Type: schema.FieldTypeChoice, Choice: ChoiceWifiRadio, Required: true},
				{Name: "protocol", Type: schema.FieldTypeString, Required: true},
				{Name: "channel", Type: schema.FieldTypeInt, Required: true, Constraints: []schema.Constraint{schema.Min(1)}},
				{Name: "bitrate", Type: schema.FieldTypeInt, Default: 11},
				{Name: "antenna_connector", Type: schema.FieldTypeString},
			},
		}},
		{parent: WifiRadio, d: registry.Descriptor{
			ID: WifiInterface, Extends: Interfaces, Name: "Wireless Interface", Order: 51,
			Fields: []schema.Field{
				{Name: "mode", Type: schema.FieldTypeChoice, Choice: ChoiceWifiMode, Required: true},
				{Name: "essid", Label: "ESSID", Type: schema.FieldTypeString, Required: true,
					Constraints: []schema.Constraint{schema.MaxLength(50)}},
				{Name: "bssid", Label: "BSSID", Type: schema.FieldTypeMAC},
				routingProtocol,
			},
		}},
		{d: registry.Descriptor{
			ID: VpnInterface, Extends: Interfaces, Name: "VPN Tunnel",
			Fields: []schema.Field{
				{Name: "protocol", Label: "VPN Protocol", Type: schema.FieldTypeChoice, Choice: ChoiceVpnProtocol, Required: true},
				{Name: "mac", Type: schema.FieldTypeMAC},
				routingProtocol,
			},
		}},

		{parent: Interfaces, d: registry.Descriptor{
			ID: Network, Name: "Generic Network Config", Section: "Network Configuration",
			Multiplicity: registry.Multiple, Hidden: true, Order: 51,
			Fields: []schema.Field{
				{Name: "enabled", Type: schema.FieldTypeBool, Default: true},
				{Name: "description", Type: schema.FieldTypeString, Constraints: []schema.Constraint{schema.MaxLength(100)}},
			},
		}},
		{parent: EthernetInterface, d: registry.Descriptor{
			ID: StaticNetwork, Extends: Network, Name: "Static Network",
			Fields: []schema.Field{
				{Name: "family", Type: schema.FieldTypeChoice, Choice: ChoiceIPFamily, Required: true},
				{Name: "address", Type: schema.FieldTypeIP, Format: schema.FormatSubnet, Required: true},
				{Name: "gateway", Type: schema.FieldTypeIP, Format: schema.FormatHost, Required: true},
			},
			Clean: CleanStaticNetwork,
		}},
		{parent: EthernetInterface, d: registry.Descriptor{
			ID: DHCPNetwork, Extends: Network, Name: "DHCP",
		}},
		{parent: EthernetInterface, d: registry.Descriptor{
			ID: AllocatedNetwork, Extends: Network, Name: "Allocated Network",
			Fields: []schema.Field{
				{Name: "family", Type: schema.FieldTypeChoice, Choice: ChoiceIPFamily, Required: true},
				{Name: "prefix_length", Type: schema.FieldTypeInt, Default: 27,
					Constraints: []schema.Constraint{schema.Min(1), schema.Max(128)}},
				{Name: "routing_announce", Label: "Announce Via", Type: schema.FieldTypeChoice, Choice: ChoiceAnnounce},
			},
		}},
		{parent: EthernetInterface, d: registry.Descriptor{
			ID: PPPoENetwork, Extends: Network, Name: "PPPoE",
			Fields: []schema.Field{
				{Name: "username", Type: schema.FieldTypeString, Required: true, Constraints: []schema.Constraint{schema.MaxLength(50)}},
				{Name: "password", Type: schema.FieldTypeString, Required: true, Constraints: []schema.Constraint{schema.MaxLength(50)}},
			},
		}},
		{parent: VpnInterface, d: registry.Descriptor{
			ID: VpnServerNetwork, Extends: Network, Name: "VPN Server",
			Fields: []schema.Field{
				{Name: "address", Type: schema.FieldTypeIP, Format: schema.FormatHost, Required: true},
				{Name: "port", Type: schema.FieldTypeInt, Required: true,
					Constraints: []schema.Constraint{schema.Min(1), schema.Max(49151)}},
			},
		}},

		{parent: Interfaces, d: registry.Descriptor{
			ID: Limits, Name: "Generic Limits", Section: "Traffic Limits Configuration",
			Multiplicity: registry.Multiple, Hidden: true, Order: 50,
			Fields: []schema.Field{{Name: "enabled", Type: schema.FieldTypeBool, Default: true}},
		}},
		{parent: VpnInterface, d: registry.Descriptor{
			ID: ThroughputLimits, Extends: Limits, Name: "Throughput Limit",
			Fields: []schema.Field{
				{Name: "limit_out", Label: "Limit OUT", Type: schema.FieldTypeChoice, Choice: ChoiceSpeeds},
				{Name: "limit_in", Label: "Limit IN", Type: schema.FieldTypeChoice, Choice: ChoiceSpeeds},
			},
		}},

		{d: registry.Descriptor{
			ID: Packages, Name: "Package Configuration", Section: "Extra Packages",
			Multiplicity: registry.Multiple, Hidden: true, Order: 100,
			Fields: []schema.Field{{Name: "enabled", Type: schema.FieldTypeBool, Default: true}},
		}},
		{d: registry.Descriptor{
			ID: DigitempPackage, Extends: Packages, Name: "Digitemp",
		}},
	}

	for _, s := range steps {
		if s.parent != "" {
			_, err = p.RegisterSubitem(s.parent, s.d)
		} else {
			_, err = p.RegisterItem(s.d)
		}
		if err != nil {
			return nil, err
		}
	}

	attach := []struct{ parent, typeID string }{
		{WifiInterface, StaticNetwork},
		{WifiInterface, AllocatedNetwork},
	}
	for _, a := range attach {
		if err := p.AttachSubitem(a.parent, a.typeID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// RegisterDevices registers the platform, router, ethernet port and radio
// choices of every device in the catalogue.
func RegisterDevices(p *registry.Point, c *capability.Catalogue) error {
	for _, platform := range c.Platforms() {
		if err := p.RegisterChoice(ChoicePlatform, platform.Name, platform.Name); err != nil {
			return err
		}
		for _, r := range platform.Routers() {
			if err := p.RegisterChoice(ChoiceRouter, r.ID, r.Name); err != nil {
				return err
			}
			for _, port := range r.Ports() {
				if err := p.RegisterChoice(ChoiceEthPort, port.ID, port.Name); err != nil {
					return err
				}
			}
			for _, radio := range r.Radios() {
				if err := p.RegisterChoice(ChoiceWifiRadio, radio.ID, radio.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// CleanStaticNetwork checks that the gateway lies inside the address
// subnet, both belong to the selected family and differ from each other.
func CleanStaticNetwork(values map[string]any) error {
	address, _ := values["address"].(string)
	gateway, _ := values["gateway"].(string)
	if address == "" || gateway == "" {
		return nil
	}

	prefix, err := netip.ParsePrefix(address)
	if err != nil {
		return fmt.Errorf("%w: address: %v", ErrInvalidNetwork, err)
	}
	gw, err := netip.ParseAddr(gateway)
	if err != nil {
		return fmt.Errorf("%w: gateway: %v", ErrInvalidNetwork, err)
	}

	wantV6 := values["family"] == "ipv6"
	if prefix.Addr().Is6() != wantV6 || gw.Is6() != wantV6 {
		return fmt.Errorf("%w: addresses must belong to the selected address family", ErrInvalidNetwork)
	}
	if !prefix.Contains(gw) {
		return fmt.Errorf("%w: gateway %s is not part of the host's subnet %s", ErrInvalidNetwork, gw, prefix.Masked())
	}
	if gw == prefix.Addr() {
		return fmt.Errorf("%w: host address and gateway address must be different", ErrInvalidNetwork)
	}
	return nil
}
