// Package idgen provides instance ID generators.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/artpar/nodecfg/ports"
)

// namespace seeds name-based IDs of config instances.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:nodecfg:instance"))

// UUID generates random (v4) UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// Derived returns a name-based (v5) UUID for an instance key within a
// node. Importing the same fixture twice yields the same IDs.
func Derived(node, slot, key string) string {
	return uuid.NewSHA1(namespace, []byte(node+"\x00"+slot+"\x00"+key)).String()
}

// Sequential generates prefix1, prefix2, ... (for tests).
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

var _ ports.IDGenerator = (*Sequential)(nil)
