package common

import (
	"encoding/hex"
	"testing"
)

func TestMakeRandHexString(t *testing.T) {
	for _, size := range []int{0, 1, 16, OpaqueTokenSize} {
		s, err := MakeRandHexString(size)
		if err != nil {
			t.Fatalf("size %d: unexpected error: %v", size, err)
		}
		if len(s) != size*2 {
			t.Fatalf("size %d: expected %d hex chars, got %d", size, size*2, len(s))
		}
		if _, err := hex.DecodeString(s); err != nil {
			t.Fatalf("size %d: not valid hex: %v", size, err)
		}
	}
}

func TestWipeByteArray(t *testing.T) {
	secret := []byte("hunter22")
	WipeByteArray(secret)
	for i, b := range secret {
		if b != 0 {
			t.Fatalf("byte %d not wiped: %x", i, b)
		}
	}

	WipeByteArray(nil)
}

func TestNewOpaqueToken_Shape(t *testing.T) {
	tok, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tok) != OpaqueTokenSize*2 {
		t.Fatalf("expected %d hex chars, got %d", OpaqueTokenSize*2, len(tok))
	}
	if _, err := hex.DecodeString(tok); err != nil {
		t.Fatalf("token is not valid hex: %v", err)
	}
}

func TestNewOpaqueToken_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[tok] = struct{}{}
	}
}
