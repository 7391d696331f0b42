package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Box seals and opens small secrets (bearer tokens, queued callback
// payloads) with a process-wide symmetric key. Sealed values carry their
// nonce as a prefix.
type Box struct {
	key [32]byte
}

// NewBox builds a Box from a 64-character hex key.
func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secret key must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(raw))
	}

	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("box is not initialized")
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("box is not initialized")
	}
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed value is too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, fmt.Errorf("failed to open sealed value")
	}
	return plaintext, nil
}
