package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingnet-poe/internal/ledger"
	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"golang.org/x/term"
)

// parseProof decodes a hex proof, with or without a 0x prefix.
func parseProof(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid proof hex: %w", err)
	}
	return b, nil
}

// resolveProof returns the proof given on the command line, or the BLAKE3
// digest of a file.
func resolveProof(proofHex, file string) ([]byte, error) {
	if proofHex != "" && file != "" {
		return nil, fmt.Errorf("use either --proof or --file, not both")
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read proof file: %w", err)
		}
		h := crypto.Hash(data)
		return h.Bytes(), nil
	}
	return parseProof(proofHex)
}

// formatEvent renders an event record on one line.
func formatEvent(rec ledger.EventRecord) string {
	if rec.To != nil {
		return fmt.Sprintf("%s(%s -> %s, 0x%s)", rec.Kind, rec.Who, rec.To, rec.Proof)
	}
	return fmt.Sprintf("%s(%s, 0x%s)", rec.Kind, rec.Who, rec.Proof)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}
