package openwrt

import (
	"context"
	"fmt"

	"github.com/artpar/nodecfg/core/buildctx"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/domain/nodeconfig"
)

// general writes the system hostname.
func general(_ context.Context, in *cgm.Input, bc *buildctx.Context) error {
	g, ok := in.Tree.Single(nodeconfig.General)
	if !ok {
		return fmt.Errorf("node %s has no general configuration", in.Node)
	}
	return bc.InNamespace("system", func(c *buildctx.Context) error {
		return c.InNamespace("system", func(c *buildctx.Context) error {
			c.Set("hostname", g.GetString("name"))
			if v := g.GetString("version"); v != "" {
				c.Set("firmware_version", v)
			}
			return nil
		})
	})
}

// authentication writes the root password hash and the authorized keys.
// Password values are stored hashed, so the hash is emitted unchanged.
func authentication(_ context.Context, in *cgm.Input, bc *buildctx.Context) error {
	var (
		password string
		keys     []string
	)
	for _, inst := range in.Tree.Instances(nodeconfig.Authentication) {
		switch inst.Type {
		case nodeconfig.PasswordAuthentication:
			if password == "" {
				password = inst.GetString("password")
			}
		case nodeconfig.PublicKeyAuthentication:
			keys = append(keys, inst.GetString("public_key"))
		}
	}
	if password == "" && len(keys) == 0 {
		return nil
	}

	return bc.InNamespace("dropbear", func(c *buildctx.Context) error {
		return c.InNamespace("main", func(c *buildctx.Context) error {
			c.Set("PasswordAuth", password != "")
			c.Set("RootPasswordAuth", password != "")
			if password != "" {
				c.Set("root_password_hash", password)
			}
			if len(keys) > 0 {
				c.Set("authorized_keys", keys)
			}
			return nil
		})
	})
}

// digitemp enables the digitemp monitoring package.
func digitemp(_ context.Context, in *cgm.Input, bc *buildctx.Context) error {
	return bc.InNamespace("packages", func(c *buildctx.Context) error {
		c.Set("nodewatcher-digitemp", in.Package.ID)
		return nil
	})
}
