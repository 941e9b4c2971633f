package proxy

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Tnze/go-mc/chat"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/1nfdev/mcbuild/mcwire"
)

// Direction is the side a frame originated from.
type Direction int

const (
	ServerToClient Direction = iota
	ClientToServer
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "C"
	}
	return "S"
}

// Phase is the coarse protocol state of a session. The numeric values are
// the wire values of the handshake's next_state field, extended with the
// post-login PLAY state.
type Phase int32

const (
	PhaseIdle   Phase = 0
	PhaseStatus Phase = 1
	PhaseLogin  Phase = 2
	PhasePlay   Phase = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseStatus:
		return "STATUS"
	case PhaseLogin:
		return "LOGIN"
	case PhasePlay:
		return "PLAY"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Packet ids handled by name (1.8 protocol numbering, matching the
// upstream this proxy targets).
const (
	IDHandshake int32 = 0x00

	IDEncryptionRequest  int32 = 0x01 // S->C login
	IDLoginSuccess       int32 = 0x02 // S->C login
	IDSetCompression     int32 = 0x03 // S->C login
	IDEncryptionResponse int32 = 0x01 // C->S login

	IDKeepAliveClientbound int32 = 0x00
	IDChatClientbound      int32 = 0x02
	IDDisconnect           int32 = 0x40
	IDKeepAliveServerbound int32 = 0x00
	IDChatServerbound      int32 = 0x01
)

// Body is the decoded form of a packet: one variant per supported kind,
// Opaque for everything else. Encoding a Body yields the field bytes after
// the packet id varint.
type Body interface {
	WriteTo(w io.Writer) (int64, error)
}

// Opaque carries the original bytes of a packet the registry does not
// decode. It re-encodes verbatim.
type Opaque struct {
	Data []byte
}

func (o Opaque) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(o.Data)
	return int64(n), err
}

// Handshake is the first client packet, selecting the next phase.
type Handshake struct {
	Protocol   int32
	ServerAddr string
	ServerPort uint16
	NextState  int32
}

func (h *Handshake) decode(raw []byte) error {
	return scanFields(raw,
		(*pk.VarInt)(&h.Protocol),
		(*pk.String)(&h.ServerAddr),
		(*pk.UnsignedShort)(&h.ServerPort),
		(*pk.VarInt)(&h.NextState),
	)
}

func (h Handshake) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w,
		pk.VarInt(h.Protocol),
		pk.String(h.ServerAddr),
		pk.UnsignedShort(h.ServerPort),
		pk.VarInt(h.NextState),
	)
}

// EncryptionRequest is the server's half of the key exchange. The proxy
// rewrites PublicKey and VerifyToken before forwarding.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (e *EncryptionRequest) decode(raw []byte) error {
	return scanFields(raw,
		(*pk.String)(&e.ServerID),
		(*pk.ByteArray)(&e.PublicKey),
		(*pk.ByteArray)(&e.VerifyToken),
	)
}

func (e EncryptionRequest) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w,
		pk.String(e.ServerID),
		pk.ByteArray(e.PublicKey),
		pk.ByteArray(e.VerifyToken),
	)
}

// EncryptionResponse is the client's half of the key exchange; both fields
// are RSA ciphertexts. The proxy rewrites both before forwarding.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (e *EncryptionResponse) decode(raw []byte) error {
	return scanFields(raw,
		(*pk.ByteArray)(&e.SharedSecret),
		(*pk.ByteArray)(&e.VerifyToken),
	)
}

func (e EncryptionResponse) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w,
		pk.ByteArray(e.SharedSecret),
		pk.ByteArray(e.VerifyToken),
	)
}

// SetCompression activates the compression envelope for all later frames.
type SetCompression struct {
	Threshold int32
}

func (s *SetCompression) decode(raw []byte) error {
	return scanFields(raw, (*pk.VarInt)(&s.Threshold))
}

func (s SetCompression) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w, pk.VarInt(s.Threshold))
}

// LoginSuccess completes the login phase.
type LoginSuccess struct {
	UUID     string
	Username string
}

func (l *LoginSuccess) decode(raw []byte) error {
	return scanFields(raw,
		(*pk.String)(&l.UUID),
		(*pk.String)(&l.Username),
	)
}

func (l LoginSuccess) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w,
		pk.String(l.UUID),
		pk.String(l.Username),
	)
}

// KeepAlive is the liveness ping, same shape in both directions.
type KeepAlive struct {
	ID int32
}

func (k *KeepAlive) decode(raw []byte) error {
	return scanFields(raw, (*pk.VarInt)(&k.ID))
}

func (k KeepAlive) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w, pk.VarInt(k.ID))
}

// ChatToClient is a clientbound chat message: a JSON chat component plus a
// screen position byte.
type ChatToClient struct {
	Message  chat.Message
	Position int8
}

func (c *ChatToClient) decode(raw []byte) error {
	return scanFields(raw, &c.Message, (*pk.Byte)(&c.Position))
}

func (c ChatToClient) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w, c.Message, pk.Byte(c.Position))
}

// ChatToServer is a serverbound chat line, plain text.
type ChatToServer struct {
	Message string
}

func (c *ChatToServer) decode(raw []byte) error {
	return scanFields(raw, (*pk.String)(&c.Message))
}

func (c ChatToServer) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w, pk.String(c.Message))
}

// Disconnect carries the server's kick reason.
type Disconnect struct {
	Reason chat.Message
}

func (d *Disconnect) decode(raw []byte) error {
	return scanFields(raw, &d.Reason)
}

func (d Disconnect) WriteTo(w io.Writer) (int64, error) {
	return writeFields(w, d.Reason)
}

// Packet is one frame at the registry boundary: its coordinates, the
// original field bytes, and the decoded Body when the registry knows the
// type. Encode re-emits Raw verbatim unless Modified is set, preserving
// bit fidelity for untouched packets.
type Packet struct {
	Dir      Direction
	Phase    Phase
	ID       int32
	Raw      []byte
	Body     Body
	Modified bool
}

// Encode renders the packet body (varint id + fields).
func (p *Packet) Encode() ([]byte, error) {
	out := mcwire.AppendVarInt(make([]byte, 0, len(p.Raw)+2), p.ID)
	if !p.Modified {
		return append(out, p.Raw...), nil
	}
	if p.Body == nil {
		return nil, fmt.Errorf("packet %s/%s/0x%02x modified without a body", p.Dir, p.Phase, p.ID)
	}
	var buf bytes.Buffer
	if _, err := p.Body.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode packet 0x%02x: %w", p.ID, err)
	}
	return append(out, buf.Bytes()...), nil
}

// scanFields parses raw field bytes into the given decoders.
func scanFields(raw []byte, fields ...pk.FieldDecoder) error {
	return pk.Packet{Data: raw}.Scan(fields...)
}

// writeFields emits the given encoders back to back.
func writeFields(w io.Writer, fields ...pk.FieldEncoder) (int64, error) {
	var n int64
	for _, f := range fields {
		m, err := f.WriteTo(w)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
