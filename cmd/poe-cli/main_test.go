package main

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/Klingon-tech/klingnet-poe/config"
	"github.com/Klingon-tech/klingnet-poe/internal/keyring"
	"github.com/Klingon-tech/klingnet-poe/internal/poe"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	if err := config.EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs() error: %v", err)
	}
	return cfg
}

// reopen checks that no earlier command still holds the Badger directory lock.
func reopen(t *testing.T, cfg *config.Config) {
	t.Helper()
	l, err := openLedger(cfg)
	if err != nil {
		t.Fatalf("openLedger() after failed command: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestRun_FailedBlockAdvanceClosesLedger(t *testing.T) {
	cfg := testConfig(t)

	if err := run(cfg, "block", []string{"advance", "--count", "1"}); err != nil {
		t.Fatalf("block advance error: %v", err)
	}
	huge := strconv.FormatUint(math.MaxUint64, 10)
	if err := run(cfg, "block", []string{"advance", "--count", huge}); err == nil {
		t.Fatal("expected overflow error")
	}
	reopen(t, cfg)
}

func TestRun_FailedClaimClosesLedger(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("POE_PASSWORD", "hunter2")

	mnemonic, err := keyring.GenerateMnemonic()
	if err != nil {
		t.Fatal(err)
	}
	seed, err := keyring.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	ks, err := keyring.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		t.Fatal(err)
	}
	fast := keyring.KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}
	addr, err := ks.Create("alice", seed, []byte("hunter2"), fast, 0)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	err = run(cfg, "claim", []string{"revoke", "--key", "alice", "--proof", "0a"})
	if !errors.Is(err, poe.ErrNoSuchProof) {
		t.Fatalf("revoke error = %v, want ErrNoSuchProof", err)
	}

	l, err := openLedger(cfg)
	if err != nil {
		t.Fatalf("openLedger() after failed claim: %v", err)
	}
	defer l.Close()
	if n, _ := l.Nonce(addr); n != 1 {
		t.Errorf("nonce = %d, want 1 after failed revoke", n)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	cfg := testConfig(t)
	if err := run(cfg, "mint", nil); !errors.Is(err, errUsage) {
		t.Errorf("error = %v, want errUsage", err)
	}
	if err := run(cfg, "claim", []string{"burn"}); err == nil {
		t.Error("expected error for unknown claim command")
	}
}
