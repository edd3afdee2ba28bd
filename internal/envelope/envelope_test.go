package envelope

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSealGrantOpen(t *testing.T) {
	sealer := NewEphemeralSealer()
	party := uuid.New()

	token, err := sealer.Seal([]byte("the answer is 42"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	assert.False(t, bytes.Contains(token, []byte("42")), "token must not leak plaintext")

	if err := sealer.Grant(token, party); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	plaintext, err := sealer.Open(token, party)
	assert.NoError(t, err)
	assert.Equal(t, "the answer is 42", string(plaintext))
}

func TestOpenWithoutGrant(t *testing.T) {
	sealer := NewEphemeralSealer()

	token, err := sealer.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	_, err = sealer.Open(token, uuid.New())
	assert.ErrorIs(t, err, ErrNotGranted)
}

func TestGrantIsPerParty(t *testing.T) {
	sealer := NewEphemeralSealer()
	granted := uuid.New()
	other := uuid.New()

	token, _ := sealer.Seal([]byte("for your eyes only"))
	_ = sealer.Grant(token, granted)

	_, err := sealer.Open(token, granted)
	assert.NoError(t, err)

	_, err = sealer.Open(token, other)
	assert.ErrorIs(t, err, ErrNotGranted)
}

func TestDistinctTokensForSamePlaintext(t *testing.T) {
	sealer := NewEphemeralSealer()

	first, _ := sealer.Seal([]byte("same words"))
	second, _ := sealer.Seal([]byte("same words"))

	// Fresh nonce per seal, so identical plaintexts produce distinct tokens
	// with independent grant tables.
	assert.NotEqual(t, first, second)
}

func TestBadToken(t *testing.T) {
	sealer := NewEphemeralSealer()
	party := uuid.New()

	err := sealer.Grant(Token([]byte("short")), party)
	assert.ErrorIs(t, err, ErrBadToken)

	_, err = sealer.Open(Token([]byte("short")), party)
	assert.ErrorIs(t, err, ErrBadToken)

	// A granted but corrupted token fails authentication.
	token, _ := sealer.Seal([]byte("intact"))
	_ = sealer.Grant(token, party)
	corrupted := make(Token, len(token))
	copy(corrupted, token)
	corrupted[len(corrupted)-1] ^= 0xff
	_ = sealer.Grant(corrupted, party)

	_, err = sealer.Open(corrupted, party)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestKeyMismatch(t *testing.T) {
	first := NewEphemeralSealer()
	second := NewEphemeralSealer()
	party := uuid.New()

	token, _ := first.Seal([]byte("wrong door"))
	_ = second.Grant(token, party)

	_, err := second.Open(token, party)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestNewSecretboxSealerKeyLength(t *testing.T) {
	_, err := NewSecretboxSealer(make([]byte, 16))
	assert.Error(t, err)

	sealer, err := NewSecretboxSealer(make([]byte, KeySize))
	assert.NoError(t, err)
	assert.NotNil(t, sealer)
}
