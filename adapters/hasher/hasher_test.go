package hasher_test

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/nodecfg/adapters/hasher"
)

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !h.Compare(hash, "s3cret") {
		t.Error("Compare() rejected the right password")
	}
	if h.Compare(hash, "wrong") {
		t.Error("Compare() accepted a wrong password")
	}
	if !h.IsHash(string(hash)) {
		t.Errorf("IsHash(%s) = false", hash)
	}
}

func TestBcrypt_CostFallback(t *testing.T) {
	for _, cost := range []int{1, 100} {
		hash, err := hasher.NewBcrypt(cost).Hash("x")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		got, err := bcrypt.Cost(hash)
		if err != nil {
			t.Fatal(err)
		}
		if got != bcrypt.DefaultCost {
			t.Errorf("NewBcrypt(%d) cost = %d, want %d", cost, got, bcrypt.DefaultCost)
		}
	}
}

func TestIsHash(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"password", false},
		{"$2a$10$abc", false},
	}
	for _, tt := range tests {
		if got := hasher.IsHash(tt.in); got != tt.want {
			t.Errorf("IsHash(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFake(t *testing.T) {
	var h hasher.Fake
	hash, _ := h.Hash("pw")
	if string(hash) != "fake$pw" || !h.Compare(hash, "pw") {
		t.Errorf("Fake hash = %s", hash)
	}
	if !h.IsHash(string(hash)) || h.IsHash("pw") {
		t.Error("Fake IsHash() misreports")
	}
}
