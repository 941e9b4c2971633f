// Package mcauth holds the cryptographic pieces of the proxied handshake:
// the key broker managing the two independent RSA relationships, the
// AES/CFB-8 cipher pairs engaged after login, and the session-server join
// digest with its signed two's-complement hex rendering.
package mcauth
