package mcauth

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

const (
	// proxyKeyBits matches the key size vanilla servers use for the
	// login handshake.
	proxyKeyBits = 1024

	// SecretLen is the length of the AES shared secret in bytes.
	SecretLen = 16

	// TokenLen is the length of the verification token in bytes.
	TokenLen = 4
)

// ErrTokenMismatch is returned when the token echoed by the client does not
// byte-match the one the broker issued. The session must be torn down.
var ErrTokenMismatch = errors.New("mcauth: verification token mismatch")

// Broker holds the two asymmetric relationships of one proxied session:
// the upstream server's public key as received on the wire, and the locally
// generated key pair presented to the client in its place. Exactly one
// proxy key pair is generated per session; there is no re-keying.
type Broker struct {
	serverPub    *rsa.PublicKey
	serverPubDER []byte

	proxyKey    *rsa.PrivateKey
	proxyPubDER []byte
	clientToken []byte
}

// SetServerKey decodes and stores the upstream server's public key. der is
// the SubjectPublicKeyInfo blob exactly as received in EncryptionRequest;
// it is retained verbatim for the join digest.
func (b *Broker) SetServerKey(der []byte) error {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return fmt.Errorf("decode server public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("decode server public key: unexpected type %T", pub)
	}
	b.serverPub = rsaPub
	b.serverPubDER = append([]byte(nil), der...)
	return nil
}

// Generate creates the proxy-side key pair and a fresh 4-byte verification
// token for the client. It returns the DER-encoded public key and the token
// to substitute into the forwarded EncryptionRequest.
func (b *Broker) Generate() (pubDER, token []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, proxyKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate proxy key pair: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encode proxy public key: %w", err)
	}
	tok := make([]byte, TokenLen)
	if _, err := rand.Read(tok); err != nil {
		return nil, nil, fmt.Errorf("generate verification token: %w", err)
	}
	b.proxyKey = key
	b.proxyPubDER = der
	b.clientToken = tok
	return der, tok, nil
}

// ServerPublicDER returns the upstream public key in wire form, as needed
// for the join digest. Nil until SetServerKey succeeds.
func (b *Broker) ServerPublicDER() []byte { return b.serverPubDER }

// WrapForServer encrypts data under the upstream server's public key with
// PKCS#1 v1.5 padding. Used for the proxy-generated shared secret and the
// upstream-issued verification token.
func (b *Broker) WrapForServer(data []byte) ([]byte, error) {
	if b.serverPub == nil {
		return nil, errors.New("mcauth: server public key not set")
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, b.serverPub, data)
	if err != nil {
		return nil, fmt.Errorf("encrypt for server: %w", err)
	}
	return ct, nil
}

// UnwrapFromClient decrypts a ciphertext produced by the client under the
// proxy public key.
func (b *Broker) UnwrapFromClient(ct []byte) ([]byte, error) {
	if b.proxyKey == nil {
		return nil, errors.New("mcauth: proxy key pair not generated")
	}
	pt, err := rsa.DecryptPKCS1v15(nil, b.proxyKey, ct)
	if err != nil {
		return nil, fmt.Errorf("decrypt from client: %w", err)
	}
	return pt, nil
}

// VerifyClientToken decrypts the token echoed by the client and checks it
// byte-matches the one issued by Generate.
func (b *Broker) VerifyClientToken(ct []byte) error {
	tok, err := b.UnwrapFromClient(ct)
	if err != nil {
		return err
	}
	if len(tok) != TokenLen || !bytes.Equal(tok, b.clientToken) {
		return ErrTokenMismatch
	}
	return nil
}

// NewSharedSecret draws a fresh 16-byte AES key from the system RNG.
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, SecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate shared secret: %w", err)
	}
	return secret, nil
}
