package mcwire

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// ErrLengthMismatch is returned when a compressed frame does not decompress
// to exactly its declared uncompressed length. This is a fatal protocol
// error.
var ErrLengthMismatch = errors.New("mcwire: declared uncompressed length mismatch")

// EncodeBody wraps a packet body (varint id + fields) for transmission
// under the given compression threshold. threshold < 0 means the envelope
// is inactive and the body passes through unchanged. Bodies at or above the
// threshold are zlib-compressed behind their declared length; shorter
// bodies are sent raw behind a zero-length marker.
func EncodeBody(body []byte, threshold int) ([]byte, error) {
	if threshold < 0 {
		return body, nil
	}
	if len(body) >= threshold {
		out := AppendVarInt(make([]byte, 0, len(body)/2+8), int32(len(body)))
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("compress body: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress body: %w", err)
		}
		return append(out, zbuf.Bytes()...), nil
	}
	out := AppendVarInt(make([]byte, 0, len(body)+1), 0)
	return append(out, body...), nil
}

// DecodeBody unwraps a received frame payload. compressed reports whether
// the peer has the envelope active (threshold >= 0); when false the payload
// is the body itself. A declared length of zero means the remainder is the
// raw body, which is how the two handshake packets crossing the compression
// toggle are framed as well.
func DecodeBody(payload []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return payload, nil
	}
	usize, n, err := ReadVarInt(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope length: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("envelope length: %w", io.ErrUnexpectedEOF)
	}
	rest := payload[n:]
	if usize == 0 {
		return rest, nil
	}
	if usize < 0 || int(usize) > MaxFrameLen {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, usize)
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("open zlib stream: %w", err)
	}
	defer zr.Close()
	body, err := io.ReadAll(io.LimitReader(zr, int64(usize)+1))
	if err != nil {
		return nil, fmt.Errorf("decompress body: %w", err)
	}
	if len(body) != int(usize) {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, usize, len(body))
	}
	return body, nil
}
