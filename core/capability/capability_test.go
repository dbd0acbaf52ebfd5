package capability_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/core/capability"
)

const r1Descriptor = `
router "R1" {
  platform     = "openwrt"
  name         = "Test Router"
  architecture = "ar71xx"

  radio "radio0" {
    protocol "g" {
      name     = "802.11BG"
      channels = channels.bg
    }
    protocol "n" {
      name     = "802.11N"
      channels = [36, 40, 44, 48]
    }
    connector "a1" {
      name = "Antenna0"
      type = "rp-sma"
    }
  }

  port "wan0" { name = "Wan0" }
  port "lan0" { name = "Lan0" }
}
`

func loadR1(t *testing.T) *capability.Catalogue {
	t.Helper()

	c := capability.NewCatalogue()
	loader := capability.NewLoader(zerolog.Nop())
	if err := loader.LoadSource(c, "r1.hcl", []byte(r1Descriptor)); err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	return c
}

func TestCatalogue_SelectProtocolAndChannel(t *testing.T) {
	c := loadR1(t)

	platform, err := c.Platform("openwrt")
	if err != nil {
		t.Fatalf("Platform() error = %v", err)
	}
	router, err := platform.Router("R1")
	if err != nil {
		t.Fatalf("Router() error = %v", err)
	}
	radio, err := router.Radio("radio0")
	if err != nil {
		t.Fatalf("Radio() error = %v", err)
	}

	if got := fmt.Sprint(radio.ProtocolCodes()); got != "[g n]" {
		t.Errorf("ProtocolCodes() = %s, want [g n]", got)
	}

	sel, err := radio.SelectProtocol("n")
	if err != nil {
		t.Fatalf("SelectProtocol(n) error = %v", err)
	}
	var numbers []int
	for _, ch := range sel.Channels(nil) {
		numbers = append(numbers, ch.Number)
	}
	if got := fmt.Sprint(numbers); got != "[36 40 44 48]" {
		t.Errorf("Channels() = %s, want [36 40 44 48]", got)
	}

	ch, err := sel.SelectChannel(44, nil)
	if err != nil {
		t.Fatalf("SelectChannel(44) error = %v", err)
	}
	if ch.Frequency != 5220 {
		t.Errorf("Frequency = %d, want 5220", ch.Frequency)
	}

	_, err = sel.SelectChannel(149, nil)
	if !errors.Is(err, capability.ErrInvalidSelection) || !errors.Is(err, capability.ErrMissingCapability) {
		t.Errorf("SelectChannel(149) error = %v, want a selection error", err)
	}
	var selErr *capability.SelectionError
	if !errors.As(err, &selErr) || selErr.Channel != 149 || selErr.Protocol != "n" {
		t.Errorf("SelectChannel(149) error = %#v", err)
	}

	_, err = radio.SelectProtocol("a")
	if !errors.Is(err, capability.ErrMissingCapability) {
		t.Errorf("SelectProtocol(a) error = %v, want ErrMissingCapability", err)
	}
	if errors.Is(err, capability.ErrInvalidSelection) {
		t.Error("unknown protocol should be a lookup failure, not a channel selection error")
	}
}

func TestCatalogue_UnknownLookups(t *testing.T) {
	c := loadR1(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"platform", func() error { _, err := c.Platform("ddwrt"); return err }},
		{"router", func() error { _, err := c.Router("openwrt", "R2"); return err }},
		{"radio", func() error { _, err := c.Radio("openwrt", "R1", "radio1"); return err }},
		{"connector", func() error {
			radio, err := c.Radio("openwrt", "R1", "radio0")
			if err != nil {
				return nil
			}
			_, err = radio.Connector("a9")
			return err
		}},
		{"port", func() error {
			r, err := c.Router("openwrt", "R1")
			if err != nil {
				return nil
			}
			_, err = r.Port("eth9")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, capability.ErrMissingCapability) {
				t.Fatalf("error = %v, want ErrMissingCapability", err)
			}
			var lookup *capability.LookupError
			if !errors.As(err, &lookup) || lookup.Kind != tt.name {
				t.Errorf("error = %#v, want LookupError of kind %s", err, tt.name)
			}
		})
	}
}

func TestCatalogue_DuplicateRouter(t *testing.T) {
	c := loadR1(t)
	loader := capability.NewLoader(zerolog.Nop())

	if err := loader.LoadSource(c, "again.hcl", []byte(r1Descriptor)); err == nil {
		t.Fatal("expected error for duplicate router")
	}
}

func TestLoader_ChannelPlanVariables(t *testing.T) {
	c := loadR1(t)

	radio, err := c.Radio("openwrt", "R1", "radio0")
	if err != nil {
		t.Fatal(err)
	}
	g, err := radio.Protocol("g")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(g.Channels(nil)); got != len(capability.ChannelsBG) {
		t.Errorf("len(Channels) = %d, want %d", got, len(capability.ChannelsBG))
	}

	connectors := radio.Connectors()
	if len(connectors) != 1 || connectors[0].Type != "rp-sma" {
		t.Errorf("Connectors() = %+v", connectors)
	}
}

func TestLoader_Errors(t *testing.T) {
	loader := capability.NewLoader(zerolog.Nop())

	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `router "x" {`},
		{"missing platform", `
router "x" {
  radio "r" {
    protocol "g" { channels = [1] }
  }
}`},
		{"unknown variable", `
router "x" {
  platform = "openwrt"
  radio "r" {
    protocol "g" { channels = channels.zz }
  }
}`},
		{"radio without protocols", `
router "x" {
  platform = "openwrt"
  radio "r" {
  }
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := loader.LoadSource(capability.NewCatalogue(), "bad.hcl", []byte(tt.src)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoader_LoadFSAndPaths(t *testing.T) {
	loader := capability.NewLoader(zerolog.Nop())

	fsys := fstest.MapFS{
		"devices/r1.hcl":    {Data: []byte(r1Descriptor)},
		"devices/README.md": {Data: []byte("ignored")},
	}
	c := capability.NewCatalogue()
	if err := loader.LoadFS(c, fsys); err != nil {
		t.Fatalf("LoadFS() error = %v", err)
	}
	if _, err := c.Router("openwrt", "R1"); err != nil {
		t.Errorf("Router() after LoadFS error = %v", err)
	}

	dir := t.TempDir()
	src := `router "R9" {
  platform = "openwrt"
  radio "wifi0" {
    protocol "a" { channels = channels.a }
  }
}`
	if err := os.WriteFile(filepath.Join(dir, "r9.hcl"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	c = capability.NewCatalogue()
	if err := loader.LoadPaths(c, dir, filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("LoadPaths() error = %v", err)
	}
	r, err := c.Router("openwrt", "R9")
	if err != nil {
		t.Fatalf("Router() error = %v", err)
	}
	if r.Name != "R9" || r.Platform() != "openwrt" {
		t.Errorf("router = %+v", r)
	}
}

func TestRegulatory(t *testing.T) {
	p := capability.NewProtocol("a", "802.11A", capability.ChannelsA...)

	etsi, err := capability.Regulatory("etsi")
	if err != nil {
		t.Fatalf("Regulatory() error = %v", err)
	}
	for _, ch := range p.Channels(etsi) {
		if ch.Number >= 149 {
			t.Errorf("ETSI allowed channel %d", ch.Number)
		}
	}

	radio := capability.NewRadio("wifi0", 0, []*capability.Protocol{p}, nil)
	sel, err := radio.SelectProtocol("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sel.SelectChannel(149, etsi); !errors.Is(err, capability.ErrInvalidSelection) {
		t.Errorf("SelectChannel(149, ETSI) error = %v", err)
	}
	if _, err := sel.SelectChannel(149, nil); err != nil {
		t.Errorf("SelectChannel(149, nil) error = %v", err)
	}

	if f, err := capability.Regulatory(""); err != nil || f != nil {
		t.Errorf("Regulatory(\"\") should return a nil filter, error = %v", err)
	}
	if _, err := capability.Regulatory("mars"); err == nil {
		t.Error("expected error for unknown domain")
	}
}
