package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Tnze/go-mc/chat"

	"github.com/1nfdev/mcbuild/mcauth"
	"github.com/1nfdev/mcbuild/mcwire"
)

// sendBuf accumulates framed bytes destined for one socket during a single
// pump iteration. It is flushed (and encrypted in place when the ciphers
// are engaged) at the end of the iteration and does not outlive it.
type sendBuf struct {
	data []byte
}

func (b *sendBuf) appendFrame(payload []byte) {
	b.data = mcwire.AppendFrame(b.data, payload)
}

// packetQueue collects packets produced while handling one inbound packet:
// the forward queue for the opposite side and the retour queue for the
// originating side.
type packetQueue struct {
	pkts []*Packet
}

func (q *packetQueue) add(p *Packet) { q.pkts = append(q.pkts, p) }

// readEvent is one raw byte run delivered by a socket reader.
type readEvent struct {
	fromClient bool
	data       []byte
	err        error
}

// readLoop feeds raw socket bytes to the pump. It owns nothing: the pump
// decrypts, frames and interprets. stop unblocks the send when the pump
// exits first.
func readLoop(c net.Conn, fromClient bool, events chan<- readEvent, stop <-chan struct{}) {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.Read(buf)
		ev := readEvent{fromClient: fromClient, err: err}
		if n > 0 {
			ev.data = append([]byte(nil), buf[:n]...)
		}
		select {
		case events <- ev:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// Run drives the session until either socket closes, a protocol error
// occurs, or ctx is cancelled. Both sockets and the trace are released
// before it returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	stop := make(chan struct{})
	defer close(stop)
	events := make(chan readEvent)
	go readLoop(s.client, true, events, stop)
	go readLoop(s.server, false, events, stop)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session cancelled")
			return nil
		case ev := <-events:
			if len(ev.data) > 0 {
				if err := s.pumpIteration(ev.fromClient, ev.data); err != nil {
					s.log.WithError(err).Error("session error")
					return err
				}
			}
			if ev.err != nil {
				if errors.Is(ev.err, io.EOF) || errors.Is(ev.err, net.ErrClosed) {
					s.log.WithField("side", sideName(ev.fromClient)).Info("connection closed")
					return nil
				}
				return fmt.Errorf("read %s side: %w", sideName(ev.fromClient), ev.err)
			}
		case <-ticker.C:
			// Idle tick, the pump's stand-in for the poll timeout.
		}
	}
}

// pumpIteration is one full drain of a session for one byte run: decrypt,
// extract frames, dispatch, flush, and finally engage the ciphers if the
// handshake latched them during this iteration.
func (s *Session) pumpIteration(fromClient bool, data []byte) error {
	rx := &s.rxServer
	if fromClient {
		rx = &s.rxClient
	}
	if s.encryptionActive {
		s.decryptPair(fromClient).Decrypt(data)
	}
	*rx = append(*rx, data...)

	var tx, bx sendBuf
	for {
		frame, consumed, err := mcwire.ExtractFrame(*rx)
		if err != nil {
			return fmt.Errorf("%s side: %w", sideName(fromClient), err)
		}
		if consumed == 0 {
			break
		}
		// The frame aliases rx, which later appends may reuse; the
		// dispatch below must see a stable copy.
		f := append([]byte(nil), frame...)
		*rx = (*rx)[consumed:]

		if s.trace != nil {
			if err := s.trace.WriteFrame(fromClient, time.Now(), f); err != nil {
				s.log.WithError(err).Warn("trace write failed")
			}
		}

		if s.phase == PhasePlay {
			err = s.handlePlayFrame(fromClient, f, &tx, &bx)
		} else {
			err = s.handleHandshakeFrame(fromClient, f, &tx)
		}
		if err != nil {
			return err
		}
	}
	if len(*rx) == 0 {
		*rx = nil
	}

	if len(tx.data) > 0 {
		if s.encryptionActive {
			s.forwardPair(fromClient).Encrypt(tx.data)
		}
		if err := writeAll(s.forwardConn(fromClient), tx.data); err != nil {
			return fmt.Errorf("write %s side: %w", sideName(!fromClient), err)
		}
	}
	if len(bx.data) > 0 {
		if s.encryptionActive {
			s.retourPair(fromClient).Encrypt(bx.data)
		}
		if err := writeAll(s.retourConn(fromClient), bx.data); err != nil {
			return fmt.Errorf("write %s side: %w", sideName(fromClient), err)
		}
	}

	if s.enableEncryption {
		// Delayed so the last plaintext frame (EncryptionResponse) was
		// flushed above.
		if err := s.engageCiphers(); err != nil {
			return err
		}
	}
	return nil
}

// engageCiphers builds both cipher pairs and flips the session into its
// encrypted state. encryptionActive never clears afterwards.
func (s *Session) engageCiphers() error {
	cc, err := mcauth.NewCipherPair(s.clientSecret)
	if err != nil {
		return fmt.Errorf("%w: client cipher: %v", ErrHandshakeFailed, err)
	}
	sc, err := mcauth.NewCipherPair(s.serverSecret)
	if err != nil {
		return fmt.Errorf("%w: server cipher: %v", ErrHandshakeFailed, err)
	}
	s.clientCipher = cc
	s.serverCipher = sc
	s.enableEncryption = false
	s.encryptionActive = true
	s.log.Info("encryption active on both channels")
	return nil
}

// handlePlayFrame runs a PLAY-phase frame through the envelope, the
// registry and the packet handler, queuing the results for both
// directions.
func (s *Session) handlePlayFrame(fromClient bool, frame []byte, tx, bx *sendBuf) error {
	dir := ServerToClient
	if fromClient {
		dir = ClientToServer
	}
	body, err := mcwire.DecodeBody(frame, s.comptr >= 0)
	if err != nil {
		return fmt.Errorf("%s side: %w", sideName(fromClient), err)
	}
	pkt, err := DecodePacket(dir, PhasePlay, body)
	if err != nil {
		return fmt.Errorf("%s side: %w", sideName(fromClient), err)
	}

	var tq, bq packetQueue
	s.handlePacket(pkt, &tq, &bq)

	for _, p := range tq.pkts {
		if err := s.queueFrame(p, tx); err != nil {
			return err
		}
	}
	for _, p := range bq.pkts {
		if err := s.queueFrame(p, bx); err != nil {
			return err
		}
	}
	return nil
}

// handlePacket decides what happens to one decoded packet. The default is
// forwarding. Client chat lines starting with "//" are proxy commands:
// they are consumed here and answered over the retour queue.
func (s *Session) handlePacket(pkt *Packet, tq, bq *packetQueue) {
	if pkt.Dir == ClientToServer && pkt.ID == IDChatServerbound {
		if c, ok := pkt.Body.(ChatToServer); ok && strings.HasPrefix(c.Message, "//") {
			s.log.Infof("chat command %q", c.Message)
			bq.add(&Packet{
				Dir:      ServerToClient,
				Phase:    PhasePlay,
				ID:       IDChatClientbound,
				Modified: true,
				Body:     ChatToClient{Message: chat.Text(commandReply(c.Message))},
			})
			return
		}
	}
	tq.add(pkt)
}

func commandReply(cmd string) string {
	switch strings.TrimSpace(cmd) {
	case "//ping":
		return "mcbuild: pong"
	default:
		return "mcbuild: unknown command " + cmd
	}
}

// queueFrame encodes a packet, applies the compression envelope and frames
// it into buf.
func (s *Session) queueFrame(p *Packet, buf *sendBuf) error {
	body, err := p.Encode()
	if err != nil {
		return err
	}
	payload, err := mcwire.EncodeBody(body, s.comptr)
	if err != nil {
		return err
	}
	buf.appendFrame(payload)
	return nil
}

// Cipher and socket selection. The forward path carries a frame to the
// side opposite its origin; the retour path carries a response back to the
// originating side. Each side's cipher pair is keyed with that side's
// shared secret.

func (s *Session) decryptPair(fromClient bool) *mcauth.CipherPair {
	if fromClient {
		return s.clientCipher
	}
	return s.serverCipher
}

func (s *Session) forwardPair(fromClient bool) *mcauth.CipherPair {
	if fromClient {
		return s.serverCipher
	}
	return s.clientCipher
}

func (s *Session) retourPair(fromClient bool) *mcauth.CipherPair {
	if fromClient {
		return s.clientCipher
	}
	return s.serverCipher
}

func (s *Session) forwardConn(fromClient bool) net.Conn {
	if fromClient {
		return s.server
	}
	return s.client
}

func (s *Session) retourConn(fromClient bool) net.Conn {
	if fromClient {
		return s.client
	}
	return s.server
}

func sideName(fromClient bool) string {
	if fromClient {
		return "client"
	}
	return "server"
}

func writeAll(c net.Conn, data []byte) error {
	_, err := c.Write(data)
	return err
}

// teardown releases the session's sockets and trace in destruction order.
func (s *Session) teardown() {
	s.client.Close()
	s.server.Close()
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			s.log.WithError(err).Warn("close trace failed")
		}
	}
	s.log.Info("session closed")
}
