package lifecycle

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
)

const nonceSize = 24

// Cipher seals and opens record text for high-sensitivity memories using
// nacl secretbox with a random nonce prefixed to the box.
type Cipher struct {
	key [32]byte
}

// NewCipher builds a cipher from a 32-byte secret key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, core.NewEngineError("NewCipher",
			fmt.Errorf("%w: key must be 32 bytes, got %d", core.ErrInvalidConfig, len(key)))
	}
	c := &Cipher{}
	copy(c.key[:], key)
	return c, nil
}

// Seal encrypts plaintext and returns it base64-encoded.
func (c *Cipher) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", core.NewEngineError("Cipher.Seal", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

// Open decrypts a base64-encoded box produced by Seal.
func (c *Cipher) Open(ciphertext string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", core.NewEngineError("Cipher.Open", err)
	}
	if len(box) < nonceSize {
		return "", core.NewEngineError("Cipher.Open",
			fmt.Errorf("%w: ciphertext too short", core.ErrInvalidInput))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", core.NewEngineError("Cipher.Open",
			fmt.Errorf("%w: decryption failed", core.ErrInvalidInput))
	}
	return string(plain), nil
}
