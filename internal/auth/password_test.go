package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *Hasher {
	return NewHasher(bcrypt.MinCost)
}

func TestHash_RoundTrip(t *testing.T) {
	h := newTestHasher()

	hash, err := h.Hash("tidepool")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$04$") {
		t.Errorf("Hash() = %q, want a cost-4 bcrypt hash", hash)
	}
	if err := h.Verify(hash, "tidepool"); err != nil {
		t.Errorf("Verify(correct) error = %v", err)
	}
	if err := h.Verify(hash, "tidepoo1"); !errors.Is(err, ErrMismatch) {
		t.Errorf("Verify(wrong) error = %v, want ErrMismatch", err)
	}
}

func TestHash_IsSalted(t *testing.T) {
	h := newTestHasher()
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestHash_Length(t *testing.T) {
	h := newTestHasher()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"too short", "abc", true},
		{"minimum", "abcd", false},
		{"maximum", strings.Repeat("x", MaxPasswordLength), false},
		{"too long", strings.Repeat("x", MaxPasswordLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Hash(tt.password)
			if tt.wantErr != errors.Is(err, ErrPasswordLength) {
				t.Errorf("Hash() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	err := newTestHasher().Verify("not-a-hash", "password")
	if err == nil || errors.Is(err, ErrMismatch) {
		t.Errorf("Verify(malformed) error = %v, want a non-mismatch error", err)
	}
}

func TestNewHasher_OutOfRangeCost(t *testing.T) {
	if h := NewHasher(0); h.cost != DefaultCost {
		t.Errorf("cost = %d, want %d", h.cost, DefaultCost)
	}
}
