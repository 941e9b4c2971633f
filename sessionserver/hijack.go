package sessionserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxBody bounds the POST body we are willing to buffer. Join requests are
// a few hundred bytes.
const maxBody = 256 * 1024

// Credentials are the three opaque strings captured from the launcher's
// join request. ServerID here is the digest the launcher computed against
// the proxy's key material; it is captured for completeness but the
// outbound join recomputes its own.
type Credentials struct {
	AccessToken     string
	SelectedProfile string
	ServerID        string
}

// Store holds the most recently captured credentials. The hijack endpoint
// writes it; the proxy pump reads it strictly after the client's
// EncryptionResponse, which the launcher only sends once its join POST has
// completed, so a plain mutex is all the ordering we need.
type Store struct {
	mu    sync.Mutex
	creds Credentials
}

// Put replaces the stored credentials.
func (s *Store) Put(c Credentials) {
	s.mu.Lock()
	s.creds = c
	s.mu.Unlock()
}

// Snapshot returns a copy of the stored credentials.
func (s *Store) Snapshot() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Server is the fake session-service endpoint. It accepts one connection at
// a time and parses a single POST per connection with a deliberately lenient
// reader. It answers 204 No Content once the three join fields are captured;
// a request it cannot parse gets no reply and its connection is closed.
type Server struct {
	store *Store
	log   *logrus.Entry
}

// NewServer returns a hijack endpoint writing captures into store.
func NewServer(store *Store) *Server {
	return &Server{store: store, log: logrus.WithField("component", "sessionserver")}
}

// ListenAndServe binds the endpoint on the given local port and serves
// until ctx is cancelled. Parse failures are logged and the connection
// dropped; they never stop the listener.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bind session endpoint: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.log.Infof("session hijack endpoint listening on :%d", port)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept session connection: %w", err)
		}
		if err := s.handleConn(conn); err != nil {
			s.log.WithError(err).Warn("session capture failed")
		}
		conn.Close()
	}
}

// handleConn reads one join POST off the connection, stores the captured
// fields and writes the 204 reply.
func (s *Server) handleConn(conn net.Conn) error {
	br := bufio.NewReader(conn)

	// Headers, line by line until the blank separator. The only header we
	// care about is Content-Length.
	clen := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		if v, ok := headerValue(line, "Content-Length"); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > maxBody {
				return fmt.Errorf("bad content length %q", v)
			}
			clen = n
		}
	}

	body := make([]byte, clen)
	if _, err := io.ReadFull(br, body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var creds Credentials
	var ok [3]bool
	creds.AccessToken, ok[0] = scanField(string(body), "accessToken")
	creds.SelectedProfile, ok[1] = scanField(string(body), "selectedProfile")
	creds.ServerID, ok[2] = scanField(string(body), "serverId")
	if !ok[0] || !ok[1] || !ok[2] {
		return fmt.Errorf("join request missing fields: %q", body)
	}
	s.store.Put(creds)
	s.log.WithFields(logrus.Fields{
		"profile": creds.SelectedProfile,
	}).Info("captured launcher session credentials")

	_, err := fmt.Fprintf(conn,
		"HTTP/1.1 204 No Content\r\n"+
			"Accept-Ranges: bytes\r\n"+
			"Content-length: 0\r\n"+
			"Date: %s\r\n"+
			"Server: Restlet-Framework/2.2.0\r\n"+
			"Connection: keep-alive\r\n"+
			"\r\n",
		time.Now().UTC().Format(http.TimeFormat))
	if err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// headerValue matches a header line against name, case-insensitively, and
// returns the trimmed value.
func headerValue(line, name string) (string, bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 || !strings.EqualFold(strings.TrimSpace(line[:i]), name) {
		return "", false
	}
	return strings.TrimSpace(line[i+1:]), true
}

// scanField is the permissive JSON field scanner: find the key, skip to the
// colon, skip to the opening quote, capture until the closing quote. Good
// enough for the fixed body shape the launcher sends, and tolerant of any
// whitespace or trailing garbage around it.
func scanField(body, key string) (string, bool) {
	i := strings.Index(body, key)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(key):]
	j := strings.IndexByte(rest, ':')
	if j < 0 {
		return "", false
	}
	rest = rest[j+1:]
	k := strings.IndexByte(rest, '"')
	if k < 0 {
		return "", false
	}
	rest = rest[k+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
