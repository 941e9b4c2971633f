package mcauth

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	cfb8 "github.com/Tnze/go-mc/net/CFB8"
)

// CipherPair is the symmetric channel state for one side of the proxy.
// Encryption and decryption advance independent CFB-8 IV chains, both
// seeded with a copy of the shared secret. CFB-8 advances the IV by one
// byte per plaintext byte, so partial writes keep the streams aligned.
type CipherPair struct {
	enc cipher.Stream
	dec cipher.Stream
}

// NewCipherPair builds the encrypt and decrypt streams for a 16-byte
// shared secret.
func NewCipherPair(secret []byte) (*CipherPair, error) {
	if len(secret) != SecretLen {
		return nil, fmt.Errorf("mcauth: shared secret must be %d bytes, got %d", SecretLen, len(secret))
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("mcauth: init cipher: %w", err)
	}
	encIV := append([]byte(nil), secret...)
	decIV := append([]byte(nil), secret...)
	return &CipherPair{
		enc: cfb8.NewCFB8Encrypt(block, encIV),
		dec: cfb8.NewCFB8Decrypt(block, decIV),
	}, nil
}

// Encrypt scrambles b in place on the outbound IV chain.
func (p *CipherPair) Encrypt(b []byte) { p.enc.XORKeyStream(b, b) }

// Decrypt unscrambles b in place on the inbound IV chain.
func (p *CipherPair) Decrypt(b []byte) { p.dec.XORKeyStream(b, b) }
