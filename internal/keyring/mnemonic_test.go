package keyring

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	if n := len(strings.Fields(m)); n != 24 {
		t.Errorf("word count = %d, want 24", n)
	}
	if !ValidateMnemonic(m) {
		t.Error("generated mnemonic should be valid")
	}
}

func TestValidateMnemonic(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", testMnemonic, true},
		{"extra whitespace and case", "  Abandon abandon ABANDON abandon abandon abandon abandon abandon abandon abandon abandon   about ", true},
		{"bad checksum", strings.Replace(testMnemonic, "about", "abandon", 1), false},
		{"unknown word", strings.Replace(testMnemonic, "about", "zzzz", 1), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMnemonic(tt.in); got != tt.want {
				t.Errorf("ValidateMnemonic() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeedFromMnemonic(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	if len(seed) != SeedSize {
		t.Fatalf("seed length = %d, want %d", len(seed), SeedSize)
	}
	// BIP-39 reference vector.
	const wantPrefix = "c55257c360c07c72"
	if got := hexPrefix(seed, 8); got != wantPrefix {
		t.Errorf("seed prefix = %s, want %s", got, wantPrefix)
	}

	noPass, _ := SeedFromMnemonic(testMnemonic, "")
	if hexPrefix(noPass, 8) == wantPrefix {
		t.Error("passphrase should change the seed")
	}

	if _, err := SeedFromMnemonic("not a mnemonic", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("error = %v, want ErrInvalidMnemonic", err)
	}
}

func hexPrefix(b []byte, n int) string {
	return hex.EncodeToString(b[:n])
}
