package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Catalogue is the platform → router → radio index. It is filled at
// bootstrap and only read afterwards.
type Catalogue struct {
	mu sync.RWMutex

	// platforms by name
	platforms map[string]*Platform
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{
		platforms: make(map[string]*Platform),
	}
}

// AddRouter registers a router under a platform, creating the platform
// on first use. Returns an error if the router id is already registered
// for the platform.
func (c *Catalogue) AddRouter(platform string, r *Router) error {
	if platform == "" || r == nil || r.ID == "" {
		return fmt.Errorf("router requires a platform and an id")
	}
	for i, radio := range r.radios {
		if radio.ID == "" {
			return fmt.Errorf("router %s: radio %d has no id", r.ID, i)
		}
		if len(radio.protocols) == 0 {
			return fmt.Errorf("router %s: radio %s supports no protocols", r.ID, radio.ID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.platforms[platform]
	if !ok {
		p = &Platform{Name: platform, routers: make(map[string]*Router)}
		c.platforms[platform] = p
	}
	if _, exists := p.routers[r.ID]; exists {
		return fmt.Errorf("router %q already registered for platform %q", r.ID, platform)
	}

	r.platform = platform
	p.routers[r.ID] = r
	p.order = append(p.order, r.ID)
	return nil
}

// Platform looks up a platform by name.
func (c *Catalogue) Platform(name string) (*Platform, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.platforms[name]
	if !ok {
		return nil, &LookupError{Kind: "platform", Value: name}
	}
	return p, nil
}

// Platforms returns all platforms sorted by name.
func (c *Catalogue) Platforms() []*Platform {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Platform, 0, len(c.platforms))
	for _, p := range c.platforms {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Router is shorthand for Platform(platform) followed by Router(id).
func (c *Catalogue) Router(platform, id string) (*Router, error) {
	p, err := c.Platform(platform)
	if err != nil {
		return nil, err
	}
	return p.Router(id)
}

// Radio resolves a radio through the full path.
func (c *Catalogue) Radio(platform, router, radio string) (*Radio, error) {
	r, err := c.Router(platform, router)
	if err != nil {
		return nil, err
	}
	return r.Radio(radio)
}
