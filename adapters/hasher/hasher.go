// Package hasher hashes secrets kept in node configuration, such as the
// root password of a device.
package hasher

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/nodecfg/ports"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost. Out of range
// costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks if plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// IsHash reports whether s already is a bcrypt hash.
func (h *Bcrypt) IsHash(s string) bool {
	return IsHash(s)
}

var _ ports.Hasher = (*Bcrypt)(nil)

// IsHash reports whether s already is a bcrypt hash. Edits that resubmit
// a stored hash must not hash it again.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// Fake stores plaintext (tests only).
type Fake struct{}

// Hash returns the plaintext behind a "fake$" prefix.
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte("fake$" + plaintext), nil
}

// Compare does simple equality check.
func (Fake) Compare(hash []byte, plaintext string) bool {
	return string(hash) == "fake$"+plaintext
}

// IsHash reports values carrying the "fake$" prefix as hashed.
func (Fake) IsHash(s string) bool {
	return strings.HasPrefix(s, "fake$")
}

var _ ports.Hasher = Fake{}
