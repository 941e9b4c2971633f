package proxy

import (
	"bytes"
	"testing"

	"github.com/Tnze/go-mc/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1nfdev/mcbuild/mcwire"
)

// encodeBody renders a Body to its field bytes.
func encodeBody(t *testing.T, b Body) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := b.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

// packetBytes renders a full packet body: varint id + fields.
func packetBytes(t *testing.T, id int32, b Body) []byte {
	t.Helper()
	return append(mcwire.AppendVarInt(nil, id), encodeBody(t, b)...)
}

func TestDecodePacketRoundtrip(t *testing.T) {
	cases := []struct {
		name  string
		dir   Direction
		phase Phase
		id    int32
		body  Body
	}{
		{"Handshake", ClientToServer, PhaseIdle, IDHandshake,
			Handshake{Protocol: 47, ServerAddr: "mc.example.org", ServerPort: 25565, NextState: 2}},
		{"EncryptionRequest", ServerToClient, PhaseLogin, IDEncryptionRequest,
			EncryptionRequest{ServerID: "", PublicKey: []byte{1, 2, 3}, VerifyToken: []byte{4, 5, 6, 7}}},
		{"EncryptionResponse", ClientToServer, PhaseLogin, IDEncryptionResponse,
			EncryptionResponse{SharedSecret: bytes.Repeat([]byte{9}, 128), VerifyToken: bytes.Repeat([]byte{8}, 128)}},
		{"SetCompression", ServerToClient, PhaseLogin, IDSetCompression,
			SetCompression{Threshold: 256}},
		{"LoginSuccess", ServerToClient, PhaseLogin, IDLoginSuccess,
			LoginSuccess{UUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5", Username: "Notch"}},
		{"KeepAliveClientbound", ServerToClient, PhasePlay, IDKeepAliveClientbound,
			KeepAlive{ID: 12345}},
		{"KeepAliveServerbound", ClientToServer, PhasePlay, IDKeepAliveServerbound,
			KeepAlive{ID: 54321}},
		{"ChatToServer", ClientToServer, PhasePlay, IDChatServerbound,
			ChatToServer{Message: "hello there"}},
		{"ChatToClient", ServerToClient, PhasePlay, IDChatClientbound,
			ChatToClient{Message: chat.Text("welcome"), Position: 1}},
		{"Disconnect", ServerToClient, PhasePlay, IDDisconnect,
			Disconnect{Reason: chat.Text("kicked")}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wire := packetBytes(t, c.id, c.body)

			pkt, err := DecodePacket(c.dir, c.phase, wire)
			require.NoError(t, err)
			assert.Equal(t, c.id, pkt.ID)
			_, opaque := pkt.Body.(Opaque)
			assert.False(t, opaque, "registered packet must decode to its variant")

			// Unmodified packets re-emit the original bytes verbatim.
			out, err := pkt.Encode()
			require.NoError(t, err)
			assert.Equal(t, wire, out)

			// Re-encoding the decoded value reproduces the same bytes.
			pkt.Modified = true
			out, err = pkt.Encode()
			require.NoError(t, err)
			assert.Equal(t, wire, out)
		})
	}
}

func TestDecodePacketUnknownIsOpaque(t *testing.T) {
	wire := append(mcwire.AppendVarInt(nil, 0x7b), 0xde, 0xad, 0xbe, 0xef)
	pkt, err := DecodePacket(ClientToServer, PhasePlay, wire)
	require.NoError(t, err)

	op, ok := pkt.Body.(Opaque)
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, op.Data)

	out, err := pkt.Encode()
	require.NoError(t, err)
	assert.Equal(t, wire, out)
}

func TestDecodePacketBadDecoderFallsBack(t *testing.T) {
	// A registered id with garbage fields stays forwardable as opaque.
	wire := append(mcwire.AppendVarInt(nil, IDChatClientbound), 0xff, 0xff, 0xff, 0xff, 0x01)
	pkt, err := DecodePacket(ServerToClient, PhasePlay, wire)
	require.NoError(t, err)
	_, ok := pkt.Body.(Opaque)
	assert.True(t, ok)

	out, err := pkt.Encode()
	require.NoError(t, err)
	assert.Equal(t, wire, out)
}

func TestPacketModifiedEncode(t *testing.T) {
	pkt := &Packet{
		Dir:   ServerToClient,
		Phase: PhaseLogin,
		ID:    IDSetCompression,
		Raw:   encodeBody(t, SetCompression{Threshold: 100}),
		Body:  SetCompression{Threshold: 100},
	}
	pkt.Body = SetCompression{Threshold: 512}
	pkt.Modified = true

	out, err := pkt.Encode()
	require.NoError(t, err)

	got, err := DecodePacket(ServerToClient, PhaseLogin, out)
	require.NoError(t, err)
	assert.Equal(t, SetCompression{Threshold: 512}, got.Body)
}

func TestPacketModifiedWithoutBody(t *testing.T) {
	pkt := &Packet{ID: 1, Modified: true}
	_, err := pkt.Encode()
	assert.Error(t, err)
}

func TestDumpPacket(t *testing.T) {
	pkt, err := DecodePacket(ClientToServer, PhaseIdle,
		packetBytes(t, IDHandshake, Handshake{Protocol: 47, ServerAddr: "h", ServerPort: 1, NextState: 2}))
	require.NoError(t, err)
	out := DumpPacket(pkt)
	assert.Contains(t, out, "Handshake")
	assert.Contains(t, out, "nextState=2")

	pkt, err = DecodePacket(ClientToServer, PhasePlay, append(mcwire.AppendVarInt(nil, 0x70), 1, 2, 3))
	require.NoError(t, err)
	assert.Contains(t, DumpPacket(pkt), "len=3")
}
