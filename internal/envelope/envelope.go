// Package envelope hides message encryption behind the two primitives the
// ledger consumes: seal a plaintext into an opaque token, and grant a party
// access to a token. The ledger stores and forwards tokens but never reads
// their contents.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
)

// Token is an opaque sealed value. The ledger treats it as a blob.
type Token []byte

// String returns a short printable form for logging.
func (t Token) String() string {
	s := base64.StdEncoding.EncodeToString(t)
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}

// Sealer is the external encryption collaborator.
type Sealer interface {
	// Seal encrypts a plaintext into an opaque token.
	Seal(plaintext []byte) (Token, error)

	// Grant allows a party to later open the given token.
	Grant(token Token, party uuid.UUID) error
}

// Opener is implemented by sealers that can also decrypt for granted parties.
type Opener interface {
	Open(token Token, party uuid.UUID) ([]byte, error)
}

var (
	ErrNotGranted = errors.New("party has no access grant for this token")
	ErrBadToken   = errors.New("malformed or corrupted token")
)

const nonceSize = 24

// KeySize is the secretbox key length in bytes.
const KeySize = 32

// SecretboxSealer seals with NaCl secretbox under a single service key and
// keeps an in-memory grant table keyed by token digest.
type SecretboxSealer struct {
	key [KeySize]byte

	mu     sync.RWMutex
	grants map[[sha256.Size]byte]map[uuid.UUID]bool
}

// NewSecretboxSealer creates a sealer from a 32-byte key.
func NewSecretboxSealer(key []byte) (*SecretboxSealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealer key must be %d bytes, got %d", KeySize, len(key))
	}
	s := &SecretboxSealer{
		grants: make(map[[sha256.Size]byte]map[uuid.UUID]bool),
	}
	copy(s.key[:], key)
	return s, nil
}

// NewEphemeralSealer creates a sealer with a random key. Tokens do not
// survive a restart; meant for tests and development setups.
func NewEphemeralSealer() *SecretboxSealer {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		panic("envelope: cannot read random key: " + err.Error())
	}
	s, _ := NewSecretboxSealer(key)
	return s
}

// Seal encrypts the plaintext with a fresh random nonce. The nonce is
// prepended to the ciphertext so the token is self-contained.
func (s *SecretboxSealer) Seal(plaintext []byte) (Token, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return Token(sealed), nil
}

// Grant records that a party may open the token.
func (s *SecretboxSealer) Grant(token Token, party uuid.UUID) error {
	if len(token) < nonceSize {
		return ErrBadToken
	}
	digest := sha256.Sum256(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[digest]; !ok {
		s.grants[digest] = make(map[uuid.UUID]bool)
	}
	s.grants[digest][party] = true
	return nil
}

// Open decrypts a token for a granted party.
func (s *SecretboxSealer) Open(token Token, party uuid.UUID) ([]byte, error) {
	if len(token) < nonceSize {
		return nil, ErrBadToken
	}
	digest := sha256.Sum256(token)

	s.mu.RLock()
	granted := s.grants[digest][party]
	s.mu.RUnlock()
	if !granted {
		return nil, ErrNotGranted
	}

	var nonce [nonceSize]byte
	copy(nonce[:], token[:nonceSize])
	plaintext, ok := secretbox.Open(nil, token[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrBadToken
	}
	return plaintext, nil
}
