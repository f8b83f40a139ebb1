package keyring

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltSize is the Argon2id salt length.
const SaltSize = 32

// Sealed layout: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
const headerSize = SaltSize + 4 + 4 + 1

// ErrWrongPassword is returned when sealed data fails authentication.
var ErrWrongPassword = errors.New("wrong password or corrupted key file")

// KDFParams holds the Argon2id cost parameters.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the Argon2id parameters used for new key files.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p KDFParams) deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Encrypt seals data under password.
func Encrypt(data, password []byte, params KDFParams) ([]byte, error) {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("kdf params must be positive")
	}

	out := make([]byte, headerSize+chacha20poly1305.NonceSizeX, headerSize+chacha20poly1305.NonceSizeX+len(data)+chacha20poly1305.Overhead)
	salt := out[:SaltSize]
	nonce := out[headerSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	binary.LittleEndian.PutUint32(out[SaltSize:], params.Memory)
	binary.LittleEndian.PutUint32(out[SaltSize+4:], params.Iterations)
	out[SaltSize+8] = params.Parallelism

	key := params.deriveKey(password, salt)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead.Seal(out, nonce, data, nil), nil
}

// Decrypt opens data sealed by Encrypt.
func Decrypt(sealed, password []byte) ([]byte, error) {
	minSize := headerSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("sealed data too short: %d bytes, need at least %d", len(sealed), minSize)
	}

	params := KDFParams{
		Memory:      binary.LittleEndian.Uint32(sealed[SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[SaltSize+4:]),
		Parallelism: sealed[SaltSize+8],
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("sealed data has invalid kdf params")
	}
	nonce := sealed[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[headerSize+chacha20poly1305.NonceSizeX:]

	key := params.deriveKey(password, sealed[:SaltSize])
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}
