package proxy

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/1nfdev/mcbuild/mcauth"
	"github.com/1nfdev/mcbuild/mcwire"
	"github.com/1nfdev/mcbuild/sessionserver"
)

// handleHandshakeFrame processes one frame received during the IDLE,
// STATUS or LOGIN phases. The two key-exchange packets are rewritten so
// the proxy owns both cryptographic relationships; everything else is
// forwarded verbatim. tx receives the framed output for the opposite side.
func (s *Session) handleHandshakeFrame(fromClient bool, frame []byte, tx *sendBuf) error {
	body := frame
	if s.comptr >= 0 {
		// Handshake frames after the compression toggle carry a
		// zero-length envelope marker but are never compressed.
		usize, n, err := mcwire.ReadVarInt(body)
		if err != nil {
			return fmt.Errorf("handshake envelope: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("handshake envelope: %w", io.ErrUnexpectedEOF)
		}
		if usize != 0 {
			return fmt.Errorf("%w: compressed frame during login", ErrHandshakeFailed)
		}
		body = body[n:]
	}

	id, n, err := mcwire.ReadVarInt(body)
	if err != nil {
		return fmt.Errorf("handshake packet id: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("handshake packet id: %w", io.ErrUnexpectedEOF)
	}
	raw := body[n:]

	switch {
	case fromClient && s.phase == PhaseIdle && id == IDHandshake:
		var h Handshake
		if err := h.decode(raw); err != nil {
			return fmt.Errorf("%w: handshake: %v", ErrHandshakeFailed, err)
		}
		next := Phase(h.NextState)
		if next != PhaseStatus && next != PhaseLogin {
			return fmt.Errorf("%w: handshake next_state %d", ErrHandshakeFailed, h.NextState)
		}
		s.setPhase(next)
		s.log.WithFields(logrus.Fields{
			"protocol": h.Protocol,
			"server":   fmt.Sprintf("%s:%d", h.ServerAddr, h.ServerPort),
			"next":     next.String(),
		}).Info("handshake")
		tx.appendFrame(frame)

	case !fromClient && s.phase == PhaseLogin && id == IDEncryptionRequest:
		return s.onEncryptionRequest(raw, tx)

	case fromClient && s.phase == PhaseLogin && id == IDEncryptionResponse:
		return s.onEncryptionResponse(raw, tx)

	case !fromClient && s.phase == PhaseLogin && id == IDSetCompression:
		var sc SetCompression
		if err := sc.decode(raw); err != nil {
			return fmt.Errorf("%w: set compression: %v", ErrHandshakeFailed, err)
		}
		// The packet itself still travels under the old framing; the
		// threshold applies from the next frame on.
		tx.appendFrame(frame)
		s.comptr = int(sc.Threshold)
		s.log.Infof("compression enabled, threshold %d", sc.Threshold)

	case !fromClient && s.phase == PhaseLogin && id == IDLoginSuccess:
		s.setPhase(PhasePlay)
		fields := logrus.Fields{}
		var ls LoginSuccess
		if err := ls.decode(raw); err == nil {
			fields["player"] = ls.Username
			if u, err := uuid.Parse(ls.UUID); err == nil {
				fields["uuid"] = u.String()
			}
		}
		s.log.WithFields(fields).Info("login success")
		tx.appendFrame(frame)

	default:
		tx.appendFrame(frame)
	}
	return nil
}

// onEncryptionRequest stashes the upstream's key material and substitutes
// the proxy's own freshly generated public key and verification token in
// the frame forwarded to the client.
func (s *Session) onEncryptionRequest(raw []byte, tx *sendBuf) error {
	if s.serverSecret != nil {
		return fmt.Errorf("%w: duplicate EncryptionRequest", ErrHandshakeFailed)
	}
	var req EncryptionRequest
	if err := req.decode(raw); err != nil {
		return fmt.Errorf("%w: encryption request: %v", ErrHandshakeFailed, err)
	}

	s.serverID = req.ServerID
	s.serverToken = append([]byte(nil), req.VerifyToken...)
	if err := s.broker.SetServerKey(req.PublicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	secret, err := mcauth.NewSharedSecret()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	s.serverSecret = secret

	pubDER, token, err := s.broker.Generate()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	s.log.WithField("serverID", req.ServerID).Info("encryption request, re-originating key pair")
	if s.comptr >= 0 {
		s.log.Warn("sending pseudo-compressed EncryptionRequest")
	}

	return s.emit(tx, IDEncryptionRequest, EncryptionRequest{
		ServerID:    req.ServerID,
		PublicKey:   pubDER,
		VerifyToken: token,
	})
}

// onEncryptionResponse verifies the client against the proxy key pair,
// performs the session join against the real session service, and forwards
// a response re-wrapped under the upstream's public key. The cipher latch
// is set here; the ciphers engage one pump iteration later so this frame
// still leaves in plaintext.
func (s *Session) onEncryptionResponse(raw []byte, tx *sendBuf) error {
	if s.serverSecret == nil {
		return fmt.Errorf("%w: EncryptionResponse before EncryptionRequest", ErrHandshakeFailed)
	}
	var resp EncryptionResponse
	if err := resp.decode(raw); err != nil {
		return fmt.Errorf("%w: encryption response: %v", ErrHandshakeFailed, err)
	}

	secret, err := s.broker.UnwrapFromClient(resp.SharedSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if len(secret) != mcauth.SecretLen {
		return fmt.Errorf("%w: client shared secret is %d bytes", ErrHandshakeFailed, len(secret))
	}
	if err := s.broker.VerifyClientToken(resp.VerifyToken); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	s.clientSecret = secret

	ekey, err := s.broker.WrapForServer(s.serverSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	etok, err := s.broker.WrapForServer(s.serverToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// The join must complete before the response reaches the upstream,
	// or the upstream rejects the login. A rejected join is logged and
	// ignored; the upstream closes the socket if it minds.
	digest := mcauth.JoinDigest(s.serverID, s.serverSecret, s.broker.ServerPublicDER())
	var creds sessionserver.Credentials
	if s.creds != nil {
		creds = s.creds.Snapshot()
	}
	if err := s.join(creds, digest); err != nil {
		s.log.WithError(err).Warn("session join failed, continuing")
	} else {
		s.log.WithField("digest", digest).Info("session join accepted")
	}

	if s.comptr >= 0 {
		s.log.Warn("sending pseudo-compressed EncryptionResponse")
	}
	if err := s.emit(tx, IDEncryptionResponse, EncryptionResponse{
		SharedSecret: ekey,
		VerifyToken:  etok,
	}); err != nil {
		return err
	}
	s.enableEncryption = true
	return nil
}

// emit frames a rewritten handshake packet, honoring the zero-length
// envelope quirk for frames sent after the compression toggle.
func (s *Session) emit(tx *sendBuf, id int32, body Body) error {
	payload := make([]byte, 0, 256)
	if s.comptr >= 0 {
		payload = mcwire.AppendVarInt(payload, 0)
	}
	payload = mcwire.AppendVarInt(payload, id)
	var buf bytes.Buffer
	if _, err := body.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode handshake packet 0x%02x: %w", id, err)
	}
	tx.appendFrame(append(payload, buf.Bytes()...))
	return nil
}
