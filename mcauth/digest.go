package mcauth

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"strings"
)

// JoinDigest computes the session-server authentication hash: SHA-1 over
// serverID || sharedSecret || serverPubDER, rendered the way the Java
// client renders it — as a signed big-endian hex number in two's-complement
// form, with a leading '-' when the high bit is set and leading zeros
// stripped after the sign.
func JoinDigest(serverID string, sharedSecret, serverPubDER []byte) string {
	h := sha1.New()
	io.WriteString(h, serverID)
	h.Write(sharedSecret)
	h.Write(serverPubDER)
	sum := h.Sum(nil)

	negative := sum[0]&0x80 != 0
	if negative {
		twosComplement(sum)
	}
	s := strings.TrimLeft(hex.EncodeToString(sum), "0")
	if s == "" {
		s = "0"
	}
	if negative {
		s = "-" + s
	}
	return s
}

// twosComplement negates b in place, interpreting it as a big-endian
// unsigned integer.
func twosComplement(b []byte) {
	carry := true
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = ^b[i]
		if carry {
			b[i]++
			carry = b[i] == 0
		}
	}
}
