package capability

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
)

// Loader reads router descriptors written in HCL into a Catalogue.
//
//	router "fon-2200" {
//	  platform     = "openwrt"
//	  name         = "Fonera FON-2200"
//	  architecture = "atheros"
//
//	  radio "wifi0" {
//	    protocol "g" {
//	      name     = "802.11BG"
//	      channels = channels.bg
//	    }
//	    connector "a1" { type = "rp-tnc" }
//	  }
//
//	  port "eth0" { name = "Ethernet0" }
//	}
type Loader struct {
	logger zerolog.Logger
	parser *hclparse.Parser
}

// NewLoader creates a descriptor loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger,
		parser: hclparse.NewParser(),
	}
}

type fileRoot struct {
	Routers []*routerBlock `hcl:"router,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type routerBlock struct {
	ID           string        `hcl:"id,label"`
	Platform     string        `hcl:"platform"`
	Name         string        `hcl:"name,optional"`
	Architecture string        `hcl:"architecture,optional"`
	Radios       []*radioBlock `hcl:"radio,block"`
	Ports        []*portBlock  `hcl:"port,block"`
}

type radioBlock struct {
	ID         string            `hcl:"id,label"`
	Index      *int              `hcl:"index,optional"`
	Protocols  []*protocolBlock  `hcl:"protocol,block"`
	Connectors []*connectorBlock `hcl:"connector,block"`
}

type protocolBlock struct {
	Code     string `hcl:"code,label"`
	Name     string `hcl:"name,optional"`
	Channels []int  `hcl:"channels"`
}

type connectorBlock struct {
	ID   string `hcl:"id,label"`
	Name string `hcl:"name,optional"`
	Type string `hcl:"type,optional"`
}

type portBlock struct {
	ID   string `hcl:"id,label"`
	Name string `hcl:"name,optional"`
}

// evalContext exposes the shared channel plans as channels.bg and channels.a.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"channels": cty.ObjectVal(map[string]cty.Value{
				"bg": numberList(ChannelsBG),
				"a":  numberList(ChannelsA),
			}),
		},
	}
}

func numberList(ns []int) cty.Value {
	vals := make([]cty.Value, 0, len(ns))
	for _, n := range ns {
		vals = append(vals, cty.NumberIntVal(int64(n)))
	}
	return cty.ListVal(vals)
}

// LoadFS loads every .hcl file of fsys, in lexical order.
func (l *Loader) LoadFS(c *Catalogue, fsys fs.FS) error {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk descriptors: %w", err)
	}

	for _, name := range files {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read descriptor %s: %w", name, err)
		}
		if err := l.LoadSource(c, name, src); err != nil {
			return err
		}
	}
	return nil
}

// LoadPaths loads .hcl files from files and directories. Paths that do
// not exist are skipped.
func (l *Loader) LoadPaths(c *Catalogue, paths ...string) error {
	files, err := findHCLFiles(paths)
	if err != nil {
		return err
	}
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read descriptor %s: %w", name, err)
		}
		if err := l.LoadSource(c, name, src); err != nil {
			return err
		}
	}
	return nil
}

// LoadSource parses one descriptor file and adds its routers to c.
func (l *Loader) LoadSource(c *Catalogue, filename string, src []byte) error {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	for _, rb := range root.Routers {
		r := rb.translate()
		if err := c.AddRouter(rb.Platform, r); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		l.logger.Debug().
			Str("file", filename).
			Str("platform", rb.Platform).
			Str("router", rb.ID).
			Int("radios", len(rb.Radios)).
			Msg("router descriptor loaded")
	}
	return nil
}

func (rb *routerBlock) translate() *Router {
	radios := make([]*Radio, 0, len(rb.Radios))
	for i, b := range rb.Radios {
		index := i
		if b.Index != nil {
			index = *b.Index
		}
		protocols := make([]*Protocol, 0, len(b.Protocols))
		for _, pb := range b.Protocols {
			protocols = append(protocols, NewProtocol(pb.Code, pb.Name, pb.Channels...))
		}
		connectors := make([]Connector, 0, len(b.Connectors))
		for _, cb := range b.Connectors {
			connectors = append(connectors, Connector{ID: cb.ID, Name: cb.Name, Type: cb.Type})
		}
		radios = append(radios, NewRadio(b.ID, index, protocols, connectors))
	}

	ports := make([]Port, 0, len(rb.Ports))
	for _, pb := range rb.Ports {
		ports = append(ports, Port{ID: pb.ID, Name: pb.Name})
	}

	name := rb.Name
	if name == "" {
		name = rb.ID
	}
	return NewRouter(rb.ID, name, rb.Architecture, radios, ports)
}

func findHCLFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}
