// Package secretbox encrypts tenant developer secrets with AES in CFB
// mode, one fresh random IV per encryption.
//
// CFB provides confidentiality only: there is no authentication tag, so
// ciphertext tampering is not detected by this package. Callers must not
// treat a successful Decrypt as proof of integrity. Upgrading to an
// authenticated mode would change the stored (iv, ciphertext) format, so
// the limitation is documented here instead.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// IVSize is the length of every initialization vector, one AES block.
const IVSize = aes.BlockSize

type Cipher struct {
	block cipher.Block
	rand  io.Reader
}

// New returns a Cipher for the given AES key (16, 24 or 32 bytes).
func New(key []byte) (*Cipher, error) {
	return NewWithRand(key, rand.Reader)
}

// NewWithRand is New with an explicit IV source, for deterministic tests.
func NewWithRand(key []byte, r io.Reader) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Cipher{block: block, rand: r}, nil
}

// Encrypt encrypts plaintext under a freshly generated random IV. The IV
// is never reused and never derived from the input; it must be stored
// alongside the ciphertext and presented again to Decrypt.
func (c *Cipher) Encrypt(plaintext []byte) (iv, ciphertext []byte, err error) {
	iv = make([]byte, IVSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, nil, fmt.Errorf("secretbox: reading iv: %w", err)
	}
	return iv, c.encryptWithIV(plaintext, iv), nil
}

func (c *Cipher) encryptWithIV(plaintext, iv []byte) []byte {
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(c.block, iv).XORKeyStream(ciphertext, plaintext)
	return ciphertext
}

// Decrypt is the deterministic inverse of Encrypt for the same key and IV.
func (c *Cipher) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("secretbox: iv must be %d bytes, got %d", IVSize, len(iv))
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(c.block, iv).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
