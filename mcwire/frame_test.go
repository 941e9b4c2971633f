package mcwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundtrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x42},
		bytes.Repeat([]byte{0xab}, 127),
		bytes.Repeat([]byte{0xcd}, 300),
	}

	var stream []byte
	for _, p := range payloads {
		stream = AppendFrame(stream, p)
	}

	for i, want := range payloads {
		frame, consumed, err := ExtractFrame(stream)
		require.NoError(t, err, "frame %d", i)
		require.NotZero(t, consumed, "frame %d", i)
		assert.Equal(t, want, append([]byte{}, frame...), "frame %d", i)
		stream = stream[consumed:]
	}
	assert.Empty(t, stream)
}

func TestExtractFramePartial(t *testing.T) {
	full := AppendFrame(nil, bytes.Repeat([]byte{0x11}, 200))
	// No prefix of the stream short of the whole frame may yield a frame.
	for cut := 0; cut < len(full); cut++ {
		frame, consumed, err := ExtractFrame(full[:cut])
		require.NoError(t, err, "cut %d", cut)
		assert.Zero(t, consumed, "cut %d", cut)
		assert.Nil(t, frame, "cut %d", cut)
	}
}

func TestExtractFrameTooLarge(t *testing.T) {
	stream := AppendVarInt(nil, MaxFrameLen+1)
	_, _, err := ExtractFrame(stream)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestExtractFrameBadVarint(t *testing.T) {
	_, _, err := ExtractFrame([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.ErrorIs(t, err, ErrVarIntTooLong)
}
