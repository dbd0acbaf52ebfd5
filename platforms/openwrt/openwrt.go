// Package openwrt provides the OpenWrt generation modules and the bundled
// OpenWrt device descriptors.
//
// Modules write UCI-shaped output: every root namespace is a UCI package,
// every nested namespace a section and every value an option.
package openwrt

import (
	"embed"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/domain/nodeconfig"
)

// Platform is the platform name modules and descriptors are registered
// under.
const Platform = "openwrt"

// Module orders.
const (
	OrderGeneral  = 1
	OrderAuth     = 5
	OrderNetwork  = 10
	OrderSwitch   = 11
	OrderWireless = 20
	OrderPackages = 100
)

//go:embed devices/*.hcl
var devices embed.FS

// Devices returns the bundled device descriptors.
func Devices() fs.FS {
	sub, err := fs.Sub(devices, "devices")
	if err != nil {
		panic(err)
	}
	return sub
}

// LoadDevices adds the bundled routers to c.
func LoadDevices(c *capability.Catalogue, logger zerolog.Logger) error {
	return capability.NewLoader(logger).LoadFS(c, Devices())
}

// Register adds the OpenWrt modules to table.
func Register(table *cgm.Table) error {
	modules := []struct {
		order int
		fn    cgm.Func
		opts  []cgm.Option
	}{
		{OrderGeneral, general, []cgm.Option{cgm.WithName("general")}},
		{OrderAuth, authentication, []cgm.Option{cgm.WithName("authentication")}},
		{OrderNetwork, network, []cgm.Option{cgm.WithName("network")}},
		{OrderSwitch, fon2200Network, []cgm.Option{cgm.WithName("fon-2200.network"), cgm.WithRouter("fon-2200")}},
		{OrderWireless, wireless, []cgm.Option{cgm.WithName("wireless")}},
		{OrderPackages, digitemp, []cgm.Option{cgm.WithName("digitemp"), cgm.WithPackage(nodeconfig.DigitempPackage)}},
	}
	for _, m := range modules {
		if err := table.Register(Platform, m.order, m.fn, m.opts...); err != nil {
			return err
		}
	}
	return nil
}
