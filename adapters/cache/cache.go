// Package cache keeps compiled artifacts in memory.
package cache

import (
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/artpar/nodecfg/core/artifact"
	"github.com/artpar/nodecfg/core/cgm"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// Artifacts caches compiled artifacts under "<node>:<snapshot digest>"
// keys. A node whose config changes gets a new key, so stale entries
// only linger until they expire or the node is invalidated.
type Artifacts struct {
	cache  *gocache.Cache
	ttl    atomic.Int64
	logger zerolog.Logger
}

// NewArtifacts creates an artifact cache with entries living for ttl.
func NewArtifacts(ttl, cleanupInterval time.Duration, logger zerolog.Logger) *Artifacts {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	a := &Artifacts{
		cache:  gocache.New(ttl, cleanupInterval),
		logger: logger,
	}
	a.ttl.Store(int64(ttl))
	return a
}

// Get retrieves an artifact by key.
func (a *Artifacts) Get(key string) (*artifact.Artifact, bool) {
	value, found := a.cache.Get(key)
	if !found {
		return nil, false
	}
	art, ok := value.(*artifact.Artifact)
	if !ok {
		a.logger.Error().Str("key", key).Msg("wrong type in artifact cache")
		return nil, false
	}
	a.logger.Debug().Str("key", key).Msg("artifact cache hit")
	return art, true
}

// Set stores an artifact with the current TTL.
func (a *Artifacts) Set(key string, art *artifact.Artifact) {
	a.cache.Set(key, art, time.Duration(a.ttl.Load()))
}

// SetTTL changes the TTL of entries stored from now on.
func (a *Artifacts) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		a.ttl.Store(int64(ttl))
	}
}

// Invalidate removes every cached artifact of node.
func (a *Artifacts) Invalidate(node string) int {
	prefix := node + ":"
	removed := 0
	for key := range a.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			a.cache.Delete(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached artifacts, expired ones included
// until cleanup.
func (a *Artifacts) Len() int {
	return a.cache.ItemCount()
}

// Flush removes all entries.
func (a *Artifacts) Flush() {
	a.cache.Flush()
}

var _ cgm.Cache = (*Artifacts)(nil)
