// Package keys provides the long-lived identity keypair and authenticated
// public-key encryption for relay frames.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/box"
)

// NonceSize is the size of the per-message nonce in bytes.
const NonceSize = 24

// KeySize is the size of public and secret keys in bytes.
const KeySize = 32

var (
	// ErrAuthentication means the ciphertext failed to authenticate: wrong
	// key, tampered payload, or a frame encrypted for someone else.
	ErrAuthentication = errors.New("keys: message authentication failed")

	// ErrMalformed means the input could not even be interpreted as an
	// encrypted message (bad lengths, bad encoding).
	ErrMalformed = errors.New("keys: malformed encrypted message")
)

// KeyPair is one installation's long-lived identity. It is generated once,
// persisted with owner-only permissions, and reused across reconnects and
// across peers.
type KeyPair struct {
	Public [KeySize]byte
	Secret [KeySize]byte
}

type keyPairFile struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// Generate creates a fresh keypair.
func Generate() (*KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &KeyPair{Public: *pub, Secret: *sec}, nil
}

// LoadOrCreate loads the keypair at path, generating and persisting a new one
// if none exists. Repeated startups reuse the same identity.
func LoadOrCreate(path string) (*KeyPair, error) {
	kp, err := load(path)
	if err == nil {
		return kp, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := save(path, kp); err != nil {
		return nil, err
	}
	slog.Info("Generated new identity keypair", "path", path)
	return kp, nil
}

func load(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f keyPairFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keypair file: %w", err)
	}

	var kp KeyPair
	if err := decodeKey(f.PublicKey, &kp.Public); err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if err := decodeKey(f.SecretKey, &kp.Secret); err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	return &kp, nil
}

func save(path string, kp *KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	data, err := json.Marshal(keyPairFile{
		PublicKey: base64.StdEncoding.EncodeToString(kp.Public[:]),
		SecretKey: base64.StdEncoding.EncodeToString(kp.Secret[:]),
	})
	if err != nil {
		return fmt.Errorf("marshal keypair: %w", err)
	}

	// Owner-only: the file holds the secret key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write keypair file: %w", err)
	}
	return nil
}

func decodeKey(s string, dst *[KeySize]byte) error {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) != KeySize {
		return fmt.Errorf("expected %d bytes, got %d", KeySize, len(raw))
	}
	copy(dst[:], raw)
	return nil
}

// ParsePublicKey decodes a base64 peer public key.
func ParsePublicKey(s string) (*[KeySize]byte, error) {
	var key [KeySize]byte
	if err := decodeKey(s, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &key, nil
}

// PublicKeyString returns the base64 form of the installation's public key.
func (kp *KeyPair) PublicKeyString() string {
	return base64.StdEncoding.EncodeToString(kp.Public[:])
}

// Encrypt seals plaintext for peerPublic with a freshly generated nonce.
// Nonces are never reused: each call draws a new one from crypto/rand.
func Encrypt(plaintext []byte, peerPublic *[KeySize]byte, ownSecret *[KeySize]byte) (nonce [NonceSize]byte, ciphertext []byte, err error) {
	if _, err = io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = box.Seal(nil, plaintext, &nonce, peerPublic, ownSecret)
	return nonce, ciphertext, nil
}

// Decrypt opens a sealed message. Returns ErrMalformed when the inputs cannot
// be an encrypted message at all, and ErrAuthentication when the payload fails
// to authenticate (wrong key or tampering).
func Decrypt(nonce []byte, ciphertext []byte, peerPublic *[KeySize]byte, ownSecret *[KeySize]byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrMalformed, len(nonce))
	}
	if len(ciphertext) < box.Overhead {
		return nil, fmt.Errorf("%w: ciphertext shorter than overhead", ErrMalformed)
	}

	var n [NonceSize]byte
	copy(n[:], nonce)

	plaintext, ok := box.Open(nil, ciphertext, &n, peerPublic, ownSecret)
	if !ok {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
