package proxy

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/1nfdev/mcbuild/mcauth"
	"github.com/1nfdev/mcbuild/mcs"
	"github.com/1nfdev/mcbuild/sessionserver"
)

// ErrHandshakeFailed marks a fatal authentication-phase error: token
// mismatch, key decode/decrypt failure, or an out-of-order handshake
// packet. The session is torn down.
var ErrHandshakeFailed = errors.New("proxy: handshake failed")

// Session is the full man-in-the-middle state for one proxied connection.
// It is created on accept and destroyed when either socket reaches EOF.
// Every field is owned by the pump goroutine; the hijack endpoint
// communicates only through the credentials store, which the pump reads
// strictly after the client's EncryptionResponse.
type Session struct {
	client net.Conn // game client <-> proxy
	server net.Conn // proxy <-> upstream

	phase Phase

	// comptr is the compression threshold; negative means the envelope
	// is inactive.
	comptr int

	broker       mcauth.Broker
	serverID     string
	serverToken  []byte // token issued by the upstream
	serverSecret []byte // generated here, wrapped for the upstream
	clientSecret []byte // received from the client

	clientCipher *mcauth.CipherPair // keyed with clientSecret
	serverCipher *mcauth.CipherPair // keyed with serverSecret

	// enableEncryption is latched when the handshake completes;
	// encryptionActive is raised one pump iteration later so the final
	// plaintext frame is flushed first. encryptionActive never clears.
	enableEncryption bool
	encryptionActive bool

	// raw receive buffers, decrypted in place; may hold a partial frame
	// across iterations.
	rxClient []byte
	rxServer []byte

	creds       *sessionserver.Store
	sessionHost string
	// join posts the session-join request; swappable for tests.
	join func(creds sessionserver.Credentials, digest string) error

	trace *mcs.Writer
	log   *logrus.Entry
}

// NewSession wires a session around an accepted client connection and the
// matching upstream connection. trace may be nil to disable capture.
func NewSession(client, server net.Conn, creds *sessionserver.Store, sessionHost string, trace *mcs.Writer, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		client:      client,
		server:      server,
		phase:       PhaseIdle,
		comptr:      -1,
		creds:       creds,
		sessionHost: sessionHost,
		trace:       trace,
		log:         log,
	}
	s.join = func(c sessionserver.Credentials, digest string) error {
		return sessionserver.Join(s.sessionHost, c, digest)
	}
	return s
}

// Phase reports the session's current protocol phase.
func (s *Session) Phase() Phase { return s.phase }

// EncryptionActive reports whether the symmetric channel is engaged.
func (s *Session) EncryptionActive() bool { return s.encryptionActive }

// setPhase advances the phase. Phases only move forward.
func (s *Session) setPhase(p Phase) {
	if p < s.phase {
		s.log.Warnf("ignoring phase regression %s -> %s", s.phase, p)
		return
	}
	s.phase = p
}
