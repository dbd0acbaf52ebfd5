package openwrt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/artpar/nodecfg/core/buildctx"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/domain/nodeconfig"
)

// section turns an instance id into a UCI section name.
func section(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}

// ErrSectionClash is returned when two instance ids clean to the same UCI
// section name within one package.
var ErrSectionClash = errors.New("section name clash")

// sections hands out section names within one UCI package, keyed by the
// cleaned name and holding the instance id that claimed it.
type sections map[string]string

func (s sections) name(id string) (string, error) {
	name := section(id)
	if prior, ok := s[name]; ok && prior != id {
		return "", fmt.Errorf("%w: %q and %q both map to %q", ErrSectionClash, prior, id, name)
	}
	s[name] = id
	return name, nil
}

// enabled returns the enabled instances of list.
func enabled(list []*tree.Instance) []*tree.Instance {
	var result []*tree.Instance
	for _, inst := range list {
		if inst.GetBool("enabled") {
			result = append(result, inst)
		}
	}
	return result
}

// network writes one interface section per enabled interface that carries
// layer 3 configuration, plus OLSR interface lists.
func network(_ context.Context, in *cgm.Input, bc *buildctx.Context) error {
	var olsr []string

	err := bc.InNamespace("network", func(c *buildctx.Context) error {
		names := sections{}
		for _, iface := range enabled(in.Tree.Instances(nodeconfig.Interfaces)) {
			name, err := names.name(iface.ID)
			if err != nil {
				return err
			}

			switch iface.Type {
			case nodeconfig.EthernetInterface:
				err = c.InNamespace(name, func(c *buildctx.Context) error {
					c.Set("ifname", iface.GetString("eth_port"))
					if iface.GetBool("uplink") {
						c.Set("defaultroute", true)
					}
					return addressing(c, in.Tree, iface)
				})
			case nodeconfig.WifiInterface:
				err = c.InNamespace(name, func(c *buildctx.Context) error {
					return addressing(c, in.Tree, iface)
				})
			case nodeconfig.VpnInterface:
				err = c.InNamespace(name, func(c *buildctx.Context) error {
					c.Set("ifname", "tap_"+name)
					c.Set("proto", "none")
					if mac := iface.GetString("mac"); mac != "" {
						c.Set("macaddr", mac)
					}
					return nil
				})
			default:
				continue
			}
			if err != nil {
				return fmt.Errorf("interface %s: %w", iface.ID, err)
			}
			if iface.GetString("routing_protocol") == "olsr" {
				olsr = append(olsr, name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := vpn(in.Tree, bc); err != nil {
		return err
	}
	if len(olsr) == 0 {
		return nil
	}
	return bc.InNamespace("olsrd", func(c *buildctx.Context) error {
		return c.InNamespace("interfaces", func(c *buildctx.Context) error {
			c.Set("interface", olsr)
			return nil
		})
	})
}

// addressing writes the protocol options of the first enabled network
// configured under iface.
func addressing(c *buildctx.Context, tr *tree.Tree, iface *tree.Instance) error {
	var nets []*tree.Instance
	for _, child := range tr.Children(iface.Ref()) {
		if child.Slot() == nodeconfig.Network {
			nets = append(nets, child)
		}
	}
	nets = enabled(nets)
	if len(nets) == 0 {
		c.Set("proto", "none")
		return nil
	}

	n := nets[0]
	switch n.Type {
	case nodeconfig.StaticNetwork:
		return static(c, n)
	case nodeconfig.DHCPNetwork:
		c.Set("proto", "dhcp")
	case nodeconfig.PPPoENetwork:
		c.Set("proto", "pppoe")
		c.Set("username", n.GetString("username"))
		c.Set("password", n.GetString("password"))
	case nodeconfig.AllocatedNetwork:
		// The address is assigned from the node's allocation pool on the
		// device; only the requested prefix is known here.
		c.Set("proto", "static")
		c.Set("allocate_family", n.GetString("family"))
		c.Set("allocate_prefix", n.GetInt("prefix_length"))
		if a := n.GetString("routing_announce"); a != "" {
			c.Set("announce", a)
		}
	default:
		c.Set("proto", "none")
	}
	return nil
}

func static(c *buildctx.Context, n *tree.Instance) error {
	prefix, err := netip.ParsePrefix(n.GetString("address"))
	if err != nil {
		return fmt.Errorf("network %s: %w", n.ID, err)
	}
	c.Set("proto", "static")
	if prefix.Addr().Is6() {
		c.Set("ip6addr", prefix.String())
		c.Set("ip6gw", n.GetString("gateway"))
		return nil
	}
	c.Set("ipaddr", prefix.Addr().String())
	c.Set("netmask", net.IP(net.CIDRMask(prefix.Bits(), 32)).String())
	c.Set("gateway", n.GetString("gateway"))
	return nil
}

// vpn writes OpenVPN client sections for VPN interfaces with servers and
// the throughput limits configured on them.
func vpn(tr *tree.Tree, bc *buildctx.Context) error {
	for _, iface := range enabled(tr.OfType(nodeconfig.VpnInterface)) {
		name := section(iface.ID)
		var servers, limits []*tree.Instance
		for _, child := range enabled(tr.Children(iface.Ref())) {
			switch child.Type {
			case nodeconfig.VpnServerNetwork:
				servers = append(servers, child)
			case nodeconfig.ThroughputLimits:
				limits = append(limits, child)
			}
		}

		if len(servers) > 0 {
			remotes := make([]string, 0, len(servers))
			for _, s := range servers {
				remotes = append(remotes, fmt.Sprintf("%s %d", s.GetString("address"), s.GetInt("port")))
			}
			err := bc.InNamespace("openvpn", func(c *buildctx.Context) error {
				return c.InNamespace(name, func(c *buildctx.Context) error {
					c.Set("enabled", true)
					c.Set("client", true)
					c.Set("dev", "tap_"+name)
					c.Set("remote", remotes)
					return nil
				})
			})
			if err != nil {
				return err
			}
		}

		for _, l := range limits {
			err := bc.InNamespace("qos", func(c *buildctx.Context) error {
				return c.InNamespace(name, func(c *buildctx.Context) error {
					c.Set("enabled", true)
					if v := l.GetString("limit_out"); v != "" {
						c.Set("upload", v)
					}
					if v := l.GetString("limit_in"); v != "" {
						c.Set("download", v)
					}
					return nil
				})
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// fon2200Ports maps the Fonera+ logical ports to switch VLAN devices.
var fon2200Ports = map[string]string{
	"wan0": "eth0.1",
	"lan0": "eth0.0",
}

// fon2200Network rewrites the ethernet devices written by network to the
// switch VLANs of the FON-2200 and configures the switch.
func fon2200Network(_ context.Context, _ *cgm.Input, bc *buildctx.Context) error {
	return bc.InNamespace("network", func(c *buildctx.Context) error {
		ns := c.Current()
		for _, key := range ns.Keys() {
			sec, ok := ns.Namespace(key)
			if !ok {
				continue
			}
			port, _ := sec.Get("ifname")
			if dev, ok := fon2200Ports[fmt.Sprint(port)]; ok {
				sec.Set("ifname", dev)
			}
		}
		return c.InNamespace("eth0", func(c *buildctx.Context) error {
			c.Set("vlan0", "0 1 2 3 5*")
			c.Set("vlan1", "4 5")
			return nil
		})
	})
}
