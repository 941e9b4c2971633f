package proxy

import (
	"fmt"
	"io"

	"github.com/1nfdev/mcbuild/mcwire"
)

// Key indexes the registry by where a packet came from, the session phase
// it arrived in, and its id.
type Key struct {
	Dir   Direction
	Phase Phase
	ID    int32
}

// Entry describes how to handle one packet type. Decode parses the field
// bytes into a Body; Dump renders a one-line diagnostic. Either may be nil.
type Entry struct {
	Name   string
	Decode func(raw []byte) (Body, error)
	Dump   func(b Body) string
}

// registry is the compile-time packet table. Anything absent is forwarded
// as an Opaque blob.
var registry = map[Key]Entry{
	{ClientToServer, PhaseIdle, IDHandshake}: {
		Name: "Handshake",
		Decode: func(raw []byte) (Body, error) {
			var h Handshake
			if err := h.decode(raw); err != nil {
				return nil, err
			}
			return h, nil
		},
		Dump: func(b Body) string {
			h := b.(Handshake)
			return fmt.Sprintf("protocol=%d server=%s:%d nextState=%d",
				h.Protocol, h.ServerAddr, h.ServerPort, h.NextState)
		},
	},
	{ServerToClient, PhaseLogin, IDEncryptionRequest}: {
		Name: "EncryptionRequest",
		Decode: func(raw []byte) (Body, error) {
			var e EncryptionRequest
			if err := e.decode(raw); err != nil {
				return nil, err
			}
			return e, nil
		},
		Dump: func(b Body) string {
			e := b.(EncryptionRequest)
			return fmt.Sprintf("serverID=%q keylen=%d toklen=%d",
				e.ServerID, len(e.PublicKey), len(e.VerifyToken))
		},
	},
	{ClientToServer, PhaseLogin, IDEncryptionResponse}: {
		Name: "EncryptionResponse",
		Decode: func(raw []byte) (Body, error) {
			var e EncryptionResponse
			if err := e.decode(raw); err != nil {
				return nil, err
			}
			return e, nil
		},
		Dump: func(b Body) string {
			e := b.(EncryptionResponse)
			return fmt.Sprintf("keylen=%d toklen=%d", len(e.SharedSecret), len(e.VerifyToken))
		},
	},
	{ServerToClient, PhaseLogin, IDSetCompression}: {
		Name: "SetCompression",
		Decode: func(raw []byte) (Body, error) {
			var s SetCompression
			if err := s.decode(raw); err != nil {
				return nil, err
			}
			return s, nil
		},
		Dump: func(b Body) string {
			return fmt.Sprintf("threshold=%d", b.(SetCompression).Threshold)
		},
	},
	{ServerToClient, PhaseLogin, IDLoginSuccess}: {
		Name: "LoginSuccess",
		Decode: func(raw []byte) (Body, error) {
			var l LoginSuccess
			if err := l.decode(raw); err != nil {
				return nil, err
			}
			return l, nil
		},
		Dump: func(b Body) string {
			l := b.(LoginSuccess)
			return fmt.Sprintf("uuid=%s name=%s", l.UUID, l.Username)
		},
	},
	{ServerToClient, PhasePlay, IDKeepAliveClientbound}: {
		Name:   "KeepAlive",
		Decode: decodeKeepAlive,
	},
	{ClientToServer, PhasePlay, IDKeepAliveServerbound}: {
		Name:   "KeepAlive",
		Decode: decodeKeepAlive,
	},
	{ServerToClient, PhasePlay, IDChatClientbound}: {
		Name: "Chat",
		Decode: func(raw []byte) (Body, error) {
			var c ChatToClient
			if err := c.decode(raw); err != nil {
				return nil, err
			}
			return c, nil
		},
		Dump: func(b Body) string {
			c := b.(ChatToClient)
			return fmt.Sprintf("pos=%d %s", c.Position, c.Message.String())
		},
	},
	{ClientToServer, PhasePlay, IDChatServerbound}: {
		Name: "Chat",
		Decode: func(raw []byte) (Body, error) {
			var c ChatToServer
			if err := c.decode(raw); err != nil {
				return nil, err
			}
			return c, nil
		},
		Dump: func(b Body) string {
			return fmt.Sprintf("%q", b.(ChatToServer).Message)
		},
	},
	{ServerToClient, PhasePlay, IDDisconnect}: {
		Name: "Disconnect",
		Decode: func(raw []byte) (Body, error) {
			var d Disconnect
			if err := d.decode(raw); err != nil {
				return nil, err
			}
			return d, nil
		},
		Dump: func(b Body) string {
			return b.(Disconnect).Reason.String()
		},
	},
}

func decodeKeepAlive(raw []byte) (Body, error) {
	var k KeepAlive
	if err := k.decode(raw); err != nil {
		return nil, err
	}
	return k, nil
}

// Lookup returns the registry entry for the given coordinates.
func Lookup(dir Direction, phase Phase, id int32) (Entry, bool) {
	e, ok := registry[Key{dir, phase, id}]
	return e, ok
}

// DecodePacket splits a packet body into id and fields and runs the
// registry decoder when one is registered. A failing decoder is not fatal:
// the packet is kept as an Opaque blob so it can still be forwarded
// byte-for-byte. The returned error is only non-nil for a malformed id
// varint, which is a framing error.
func DecodePacket(dir Direction, phase Phase, body []byte) (*Packet, error) {
	id, n, err := mcwire.ReadVarInt(body)
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("packet id: %w", io.ErrUnexpectedEOF)
	}
	raw := append([]byte(nil), body[n:]...)
	p := &Packet{Dir: dir, Phase: phase, ID: id, Raw: raw, Body: Opaque{Data: raw}}
	if e, ok := Lookup(dir, phase, id); ok && e.Decode != nil {
		if b, err := e.Decode(raw); err == nil {
			p.Body = b
		}
	}
	return p, nil
}

// DumpPacket renders a one-line description of a packet for diagnostics.
func DumpPacket(p *Packet) string {
	e, ok := Lookup(p.Dir, p.Phase, p.ID)
	head := fmt.Sprintf("%s %c %02x", p.Dir, p.Phase.String()[0], p.ID)
	if ok {
		head += " " + e.Name
		if e.Dump != nil {
			if _, opaque := p.Body.(Opaque); !opaque {
				return head + " " + e.Dump(p.Body)
			}
		}
		return head
	}
	return fmt.Sprintf("%s len=%d", head, len(p.Raw))
}
