package keyring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Klingon-tech/klingnet-poe/internal/log"
	"github.com/Klingon-tech/klingnet-poe/pkg/crypto"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

const (
	keyFileVersion = 1
	keyFileExt     = ".key"
)

// Keystore errors.
var (
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")
	ErrBadKeyName  = errors.New("invalid key name")
)

// keyFile is the on-disk JSON format of one encrypted key.
type keyFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	Account       uint32    `json:"account"`
	Address       string    `json:"address"` // cached so listing needs no password
	EncryptedSeed []byte    `json:"encrypted_seed"`
}

// Keystore manages encrypted key files in a directory.
type Keystore struct {
	dir string
}

// NewKeystore opens a keystore in dir, creating the directory if needed.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir}, nil
}

// validName accepts names made of letters, digits, '-', '_' and '.'.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

func (ks *Keystore) keyPath(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrBadKeyName, name)
	}
	return filepath.Join(ks.dir, name+keyFileExt), nil
}

// Create encrypts seed under password and stores it as name. The address
// of the given account index is derived now and cached in the file.
func (ks *Keystore) Create(name string, seed, password []byte, params KDFParams, account uint32) (types.Address, error) {
	path, err := ks.keyPath(name)
	if err != nil {
		return types.Address{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return types.Address{}, fmt.Errorf("%w: %q", ErrKeyExists, name)
	}

	acct, err := accountKey(seed, account)
	if err != nil {
		return types.Address{}, err
	}
	addr := acct.Address()

	sealed, err := Encrypt(seed, password, params)
	if err != nil {
		return types.Address{}, fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keyFile{
		Version:       keyFileVersion,
		CreatedAt:     time.Now().UTC(),
		Account:       account,
		Address:       addr.String(),
		EncryptedSeed: sealed,
	}
	if err := writeKeyFile(path, &kf); err != nil {
		return types.Address{}, err
	}

	log.Keyring.Info().Str("name", name).Str("address", addr.String()).Msg("Key created")
	return addr, nil
}

// Load decrypts the seed stored under name.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt key %q: %w", name, err)
	}
	return seed, nil
}

// Signer decrypts the key stored under name and returns its signing key.
func (ks *Keystore) Signer(name string, password []byte) (*crypto.PrivateKey, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt key %q: %w", name, err)
	}
	defer wipe(seed)

	acct, err := accountKey(seed, kf.Account)
	if err != nil {
		return nil, err
	}
	return acct.Signer()
}

// Address returns the cached address of a key without decrypting it.
func (ks *Keystore) Address(name string) (types.Address, error) {
	kf, err := ks.read(name)
	if err != nil {
		return types.Address{}, err
	}
	addr, err := types.ParseAddress(kf.Address)
	if err != nil {
		return types.Address{}, fmt.Errorf("key %q address: %w", name, err)
	}
	return addr, nil
}

// List returns the names of all stored keys, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == keyFileExt {
			names = append(names, name[:len(name)-len(keyFileExt)])
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a key file.
func (ks *Keystore) Delete(name string) error {
	path, err := ks.keyPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrKeyNotFound, name)
		}
		return fmt.Errorf("remove key: %w", err)
	}
	log.Keyring.Info().Str("name", name).Msg("Key deleted")
	return nil
}

func accountKey(seed []byte, account uint32) (*HDKey, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return master.DeriveAccount(account)
}

func (ks *Keystore) read(name string) (*keyFile, error) {
	path, err := ks.keyPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
		}
		return nil, fmt.Errorf("read key: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}
	return &kf, nil
}

func writeKeyFile(path string, kf *keyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}
