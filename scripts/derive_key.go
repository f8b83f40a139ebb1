// derive_key.go prints the public key and registry address derived from a
// mnemonic file, without touching a keystore.
// Usage: go run scripts/derive_key.go <mnemonic-file> [account]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/Klingon-tech/klingnet-poe/internal/keyring"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <mnemonic-file> [account]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}

	var account uint64
	if len(os.Args) > 2 {
		account, err = strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			fail(fmt.Errorf("account index: %w", err))
		}
	}

	seed, err := keyring.SeedFromMnemonic(string(data), "")
	if err != nil {
		fail(err)
	}
	master, err := keyring.NewMasterKey(seed)
	if err != nil {
		fail(err)
	}
	key, err := master.DeriveAccount(uint32(account))
	if err != nil {
		fail(err)
	}
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(key.PublicKeyBytes()))
	fmt.Printf("address=%s\n", key.Address())
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
