package keyring

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func testMaster(t *testing.T) *HDKey {
	t.Helper()
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	return master
}

func TestNewMasterKey(t *testing.T) {
	master := testMaster(t)
	if !master.IsPrivate() {
		t.Error("master key should be private")
	}
	if master.Depth() != 0 {
		t.Errorf("depth = %d, want 0", master.Depth())
	}
	if len(master.PublicKeyBytes()) != 33 {
		t.Errorf("public key length = %d, want 33", len(master.PublicKeyBytes()))
	}

	for _, n := range []int{0, 32, 128} {
		if _, err := NewMasterKey(make([]byte, n)); err == nil {
			t.Errorf("NewMasterKey(%d bytes) should fail", n)
		}
	}
}

func TestDeriveAccount(t *testing.T) {
	master := testMaster(t)

	acct, err := master.DeriveAccount(0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	if acct.Depth() != 5 {
		t.Errorf("depth = %d, want 5", acct.Depth())
	}

	manual, err := master.DerivePath(PurposeBIP44, CoinType, bip32.FirstHardenedChild, 0, 0)
	if err != nil {
		t.Fatalf("DerivePath() error: %v", err)
	}
	if acct.Address() != manual.Address() {
		t.Error("DeriveAccount(0) should match the explicit BIP-44 path")
	}

	other, err := master.DeriveAccount(1)
	if err != nil {
		t.Fatalf("DeriveAccount(1) error: %v", err)
	}
	if other.Address() == acct.Address() {
		t.Error("different accounts should have different addresses")
	}

	again, _ := testMaster(t).DeriveAccount(0)
	if again.Address() != acct.Address() {
		t.Error("derivation should be deterministic")
	}
}

func TestHDKey_Signer(t *testing.T) {
	acct, err := testMaster(t).DeriveAccount(0)
	if err != nil {
		t.Fatalf("DeriveAccount() error: %v", err)
	}
	signer, err := acct.Signer()
	if err != nil {
		t.Fatalf("Signer() error: %v", err)
	}
	if !bytes.Equal(signer.PublicKey(), acct.PublicKeyBytes()) {
		t.Error("signer public key should match HD public key")
	}
	if signer.Address() != acct.Address() {
		t.Error("signer address should match HD address")
	}

	hash := crypto.Hash([]byte("claim"))
	sig, err := signer.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(hash[:], sig, acct.PublicKeyBytes()) {
		t.Error("signature should verify against the HD public key")
	}

	public := &HDKey{key: acct.key.PublicKey()}
	if _, err := public.Signer(); err == nil {
		t.Error("public-only key should not produce a signer")
	}
}
