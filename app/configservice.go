// Package app contains the ConfigService used to edit node configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/schema"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/domain/nodeconfig"
	"github.com/artpar/nodecfg/ports"
)

// EditMetrics records edit outcomes.
type EditMetrics interface {
	Edit(op string, ok bool)
}

// Invalidator drops compiled artifacts of a node.
type Invalidator interface {
	Invalidate(node string) int
}

type nopEditMetrics struct{}

func (nopEditMetrics) Edit(string, bool) {}

// ConfigOption configures a ConfigService.
type ConfigOption func(*ConfigService)

// WithEditMetrics records put and delete outcomes on m.
func WithEditMetrics(m EditMetrics) ConfigOption {
	return func(s *ConfigService) { s.metrics = m }
}

// WithInvalidator drops cached artifacts of every edited node.
func WithInvalidator(inv Invalidator) ConfigOption {
	return func(s *ConfigService) { s.invalidator = inv }
}

// WithChannelFilter restricts radio channels accepted at edit time.
func WithChannelFilter(f capability.Filter) ConfigOption {
	return func(s *ConfigService) { s.filter = f }
}

// ConfigService edits node config trees. Every edit is validated against
// the registry, the tree's references and the capabilities of the node's
// router before it is stored.
type ConfigService struct {
	store       ports.NodeStore
	point       *registry.Point
	catalogue   *capability.Catalogue
	ids         ports.IDGenerator
	hasher      ports.Hasher
	logger      zerolog.Logger
	metrics     EditMetrics
	invalidator Invalidator
	filter      capability.Filter
}

// NewConfigService creates a config service.
func NewConfigService(
	store ports.NodeStore,
	point *registry.Point,
	catalogue *capability.Catalogue,
	ids ports.IDGenerator,
	hasher ports.Hasher,
	logger zerolog.Logger,
	opts ...ConfigOption,
) *ConfigService {
	s := &ConfigService{
		store:     store,
		point:     point,
		catalogue: catalogue,
		ids:       ids,
		hasher:    hasher,
		logger:    logger,
		metrics:   nopEditMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateNode registers a node with an empty config tree. An empty ID is
// generated.
func (s *ConfigService) CreateNode(ctx context.Context, id, name string) (ports.Node, error) {
	if id == "" {
		id = s.ids.New()
	}
	n := ports.Node{ID: id, Name: name}
	if err := s.store.CreateNode(ctx, n); err != nil {
		return ports.Node{}, err
	}
	s.logger.Info().Str("node", id).Msg("node created")
	return s.store.GetNode(ctx, id)
}

// DeleteNode removes a node and its config tree.
func (s *ConfigService) DeleteNode(ctx context.Context, id string) error {
	if err := s.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	s.logger.Info().Str("node", id).Msg("node deleted")
	return nil
}

// Tree returns a snapshot of the node's config tree.
func (s *ConfigService) Tree(ctx context.Context, nodeID string) (*tree.Tree, error) {
	return s.store.LoadConfigTree(ctx, nodeID)
}

// PutItem validates and stores inst in the node's tree. An empty ID is
// generated. Storing into a single slot supersedes the prior instance;
// the removed refs are returned.
func (s *ConfigService) PutItem(ctx context.Context, nodeID string, inst *tree.Instance) (*tree.Instance, []tree.Ref, error) {
	var (
		stored  *tree.Instance
		removed []tree.Ref
	)
	err := s.edit(ctx, "put", nodeID, func(tr *tree.Tree) error {
		var err error
		stored, removed, err = s.put(tr, inst)
		if err != nil {
			return err
		}
		return s.checkCapabilities(tr)
	})
	if err != nil {
		return nil, nil, err
	}
	return stored, removed, nil
}

// DeleteItem removes an instance and everything depending on it.
func (s *ConfigService) DeleteItem(ctx context.Context, nodeID string, ref tree.Ref) ([]tree.Ref, error) {
	var removed []tree.Ref
	err := s.edit(ctx, "delete", nodeID, func(tr *tree.Tree) error {
		var err error
		removed, err = tr.Delete(ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Import creates a node and stores all instances of f in one update.
// Either the whole fixture is stored or nothing is.
func (s *ConfigService) Import(ctx context.Context, f *Fixture) (ports.Node, error) {
	n, err := s.CreateNode(ctx, f.Node, f.Name)
	if err != nil {
		return ports.Node{}, err
	}
	err = s.edit(ctx, "import", n.ID, func(tr *tree.Tree) error {
		for _, item := range f.Items {
			if _, _, err := s.put(tr, item.Instance()); err != nil {
				return fmt.Errorf("item %s/%s: %w", item.Type, item.ID, err)
			}
		}
		return s.checkCapabilities(tr)
	})
	if err != nil {
		if derr := s.store.DeleteNode(ctx, n.ID); derr != nil {
			s.logger.Warn().Err(derr).Str("node", n.ID).Msg("failed to remove partially imported node")
		}
		return ports.Node{}, err
	}
	return n, nil
}

func (s *ConfigService) edit(ctx context.Context, op, nodeID string, fn ports.Mutation) error {
	err := s.store.Update(ctx, nodeID, fn)
	s.metrics.Edit(op, err == nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("node", nodeID).Str("op", op).Msg("edit rejected")
		return err
	}
	s.invalidate(nodeID)
	s.logger.Debug().Str("node", nodeID).Str("op", op).Msg("config edited")
	return nil
}

func (s *ConfigService) invalidate(nodeID string) {
	if s.invalidator == nil {
		return
	}
	if n := s.invalidator.Invalidate(nodeID); n > 0 {
		s.logger.Debug().Str("node", nodeID).Int("artifacts", n).Msg("cached artifacts dropped")
	}
}

// put hashes secret values and stores a copy of inst.
func (s *ConfigService) put(tr *tree.Tree, inst *tree.Instance) (*tree.Instance, []tree.Ref, error) {
	if inst == nil {
		return nil, nil, fmt.Errorf("%w: instance is required", tree.ErrInvalidInstance)
	}
	typ, err := s.point.Item(inst.Type)
	if err != nil {
		return nil, nil, err
	}

	c := *inst
	if c.ID == "" {
		c.ID = s.ids.New()
	}
	c.Values = maps.Clone(inst.Values)
	for _, f := range typ.Fields {
		if f.Type != schema.FieldTypeSecret {
			continue
		}
		plain, _ := c.Values[f.Name].(string)
		if plain == "" || s.hasher.IsHash(plain) {
			continue
		}
		hash, err := s.hasher.Hash(plain)
		if err != nil {
			return nil, nil, fmt.Errorf("hash %s.%s: %w", inst.Type, f.Name, err)
		}
		c.Values[f.Name] = string(hash)
	}
	return tr.Put(&c)
}

// checkCapabilities validates ethernet ports and radio selections of tr
// against the router chosen in its general item.
func (s *ConfigService) checkCapabilities(tr *tree.Tree) error {
	eths := tr.OfType(nodeconfig.EthernetInterface)
	radios := tr.OfType(nodeconfig.WifiRadio)
	if len(eths) == 0 && len(radios) == 0 {
		return nil
	}

	g, ok := tr.Single(nodeconfig.General)
	if !ok {
		return fmt.Errorf("%w: node has no router selected", capability.ErrMissingCapability)
	}
	router, err := s.catalogue.Router(g.GetString("platform"), g.GetString("router"))
	if err != nil {
		return err
	}

	var errs []error
	for _, inst := range eths {
		if _, err := router.Port(inst.GetString("eth_port")); err != nil {
			errs = append(errs, fmt.Errorf("interface %s: %w", inst.ID, err))
		}
	}
	for _, inst := range radios {
		if err := s.checkRadio(router, inst); err != nil {
			errs = append(errs, fmt.Errorf("radio %s: %w", inst.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *ConfigService) checkRadio(router *capability.Router, inst *tree.Instance) error {
	radio, err := router.Radio(inst.GetString("wifi_radio"))
	if err != nil {
		return err
	}
	sel, err := radio.SelectProtocol(inst.GetString("protocol"))
	if err != nil {
		return err
	}
	if _, err := sel.SelectChannel(inst.GetInt("channel"), s.filter); err != nil {
		return err
	}
	if id := inst.GetString("antenna_connector"); id != "" {
		if _, err := radio.Connector(id); err != nil {
			return err
		}
	}
	return nil
}
