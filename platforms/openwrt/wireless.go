package openwrt

import (
	"context"
	"fmt"

	"github.com/artpar/nodecfg/core/buildctx"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/domain/nodeconfig"
)

var wifiModes = map[string]string{
	"mesh": "adhoc",
	"ap":   "ap",
	"sta":  "sta",
}

// wireless writes a wifi-device section per enabled radio and a wifi-iface
// section per enabled wireless interface under it. The radio's protocol,
// channel and antenna connector are checked against the router.
func wireless(_ context.Context, in *cgm.Input, bc *buildctx.Context) error {
	return bc.InNamespace("wireless", func(c *buildctx.Context) error {
		names := sections{}
		for _, inst := range enabled(in.Tree.OfType(nodeconfig.WifiRadio)) {
			if err := wifiDevice(c, in, names, inst); err != nil {
				return fmt.Errorf("radio %s: %w", inst.ID, err)
			}
		}
		return nil
	})
}

func wifiDevice(c *buildctx.Context, in *cgm.Input, names sections, inst *tree.Instance) error {
	radio, err := in.Router.Radio(inst.GetString("wifi_radio"))
	if err != nil {
		return err
	}
	sel, err := radio.SelectProtocol(inst.GetString("protocol"))
	if err != nil {
		return err
	}
	ch, err := sel.SelectChannel(inst.GetInt("channel"), in.Filter)
	if err != nil {
		return err
	}

	device, err := names.name(inst.ID)
	if err != nil {
		return err
	}
	err = c.InNamespace(device, func(c *buildctx.Context) error {
		c.Set("type", "mac80211")
		c.Set("phy", fmt.Sprintf("phy%d", radio.Index))
		c.Set("hwmode", "11"+sel.Protocol.Code)
		c.Set("channel", ch.Number)
		c.Set("frequency", ch.Frequency)
		if rate := inst.GetInt("bitrate"); rate > 0 {
			c.Set("rate", rate)
		}
		if id := inst.GetString("antenna_connector"); id != "" {
			conn, err := radio.Connector(id)
			if err != nil {
				return err
			}
			c.Set("antenna", conn.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, iface := range enabled(in.Tree.Children(inst.Ref())) {
		if iface.Type != nodeconfig.WifiInterface {
			continue
		}
		name, err := names.name(iface.ID)
		if err != nil {
			return err
		}
		err = c.InNamespace(name, func(c *buildctx.Context) error {
			c.Set("device", device)
			c.Set("network", name)
			c.Set("mode", wifiModes[iface.GetString("mode")])
			c.Set("ssid", iface.GetString("essid"))
			if bssid := iface.GetString("bssid"); bssid != "" {
				c.Set("bssid", bssid)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
