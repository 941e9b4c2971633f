package mcwire

import (
	"errors"
	"fmt"
)

// MaxFrameLen caps a single frame payload at 4 MiB. The protocol itself
// declares no limit; anything larger than this is treated as a corrupted
// or hostile stream.
const MaxFrameLen = 4 << 20

// ErrFrameTooLarge is returned for frames whose declared length exceeds
// MaxFrameLen. This is a fatal protocol error.
var ErrFrameTooLarge = errors.New("mcwire: frame exceeds maximum length")

// ExtractFrame splits one length-prefixed frame off the head of buf.
// It returns the frame payload (aliasing buf) and the total number of
// bytes consumed including the length prefix. consumed == 0 with a nil
// error means buf does not yet hold a complete frame.
func ExtractFrame(buf []byte) (frame []byte, consumed int, err error) {
	plen, n, err := ReadVarInt(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("frame length: %w", err)
	}
	if n == 0 {
		return nil, 0, nil
	}
	if plen < 0 || plen > MaxFrameLen {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, plen)
	}
	if len(buf) < n+int(plen) {
		return nil, 0, nil
	}
	return buf[n : n+int(plen)], n + int(plen), nil
}

// AppendFrame appends the VarInt length prefix and the payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = AppendVarInt(dst, int32(len(payload)))
	return append(dst, payload...)
}
