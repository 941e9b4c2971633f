package sessionserver

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanField(t *testing.T) {
	body := `{"accessToken":"A","selectedProfile":"B","serverId":"C"}`
	for key, want := range map[string]string{
		"accessToken":     "A",
		"selectedProfile": "B",
		"serverId":        "C",
	} {
		got, ok := scanField(body, key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok := scanField(body, "missing")
	assert.False(t, ok)

	// Permissive about whitespace; a value with no closing quote is rejected.
	got, ok := scanField(`{ "accessToken" :   "spaced out" }`, "accessToken")
	require.True(t, ok)
	assert.Equal(t, "spaced out", got)

	_, ok = scanField(`{"accessToken":"unterminated`, "accessToken")
	assert.False(t, ok)
}

func TestHeaderValue(t *testing.T) {
	v, ok := headerValue("Content-Length: 42\r\n", "Content-Length")
	require.True(t, ok)
	assert.Equal(t, "42", v)

	v, ok = headerValue("content-length:17\r\n", "Content-Length")
	require.True(t, ok)
	assert.Equal(t, "17", v)

	_, ok = headerValue("Host: example.com\r\n", "Content-Length")
	assert.False(t, ok)
}

// The hijack capture flow end to end: one POST, fields stored, 204 reply.
func TestHandleConnCapturesJoin(t *testing.T) {
	store := &Store{}
	srv := NewServer(store)

	local, remote := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.handleConn(remote) }()

	body := `{"accessToken":"A","selectedProfile":"B","serverId":"C"}` + "  \n"
	req := "POST /session/minecraft/join HTTP/1.1\r\n" +
		"Content-Type: application/json; charset=utf-8\r\n" +
		"User-Agent: Java/1.6.0_27\r\n" +
		"Host: sessionserver.mojang.com\r\n" +
		"Connection: keep-alive\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
		"\r\n" + body
	go func() {
		_, _ = local.Write([]byte(req))
	}()

	br := bufio.NewReader(local)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 204 No Content\r\n", status)

	headers := map[string]string{}
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		parts := strings.SplitN(strings.TrimRight(line, "\r\n"), ":", 2)
		require.Len(t, parts, 2, line)
		headers[parts[0]] = strings.TrimSpace(parts[1])
	}
	assert.Equal(t, "0", headers["Content-length"])
	assert.Equal(t, "keep-alive", headers["Connection"])
	assert.NotEmpty(t, headers["Date"])
	assert.NotEmpty(t, headers["Server"])

	require.NoError(t, <-done)
	assert.Equal(t, Credentials{
		AccessToken:     "A",
		SelectedProfile: "B",
		ServerID:        "C",
	}, store.Snapshot())

	local.Close()
	remote.Close()
}

func TestHandleConnRejectsMissingFields(t *testing.T) {
	store := &Store{}
	srv := NewServer(store)

	local, remote := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.handleConn(remote) }()

	body := `{"accessToken":"only"}`
	req := "POST /session/minecraft/join HTTP/1.1\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
		"\r\n" + body
	_, err := local.Write([]byte(req))
	require.NoError(t, err)

	assert.Error(t, <-done)
	assert.Equal(t, Credentials{}, store.Snapshot())

	local.Close()
	remote.Close()
}

func TestHandleConnRejectsBadContentLength(t *testing.T) {
	store := &Store{}
	srv := NewServer(store)

	local, remote := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.handleConn(remote) }()

	_, err := local.Write([]byte("POST / HTTP/1.1\r\nContent-Length: banana\r\n\r\n"))
	require.NoError(t, err)

	assert.Error(t, <-done)
	local.Close()
	remote.Close()
}

func TestStoreSnapshot(t *testing.T) {
	s := &Store{}
	assert.Equal(t, Credentials{}, s.Snapshot())
	c := Credentials{AccessToken: "a", SelectedProfile: "p", ServerID: "s"}
	s.Put(c)
	assert.Equal(t, c, s.Snapshot())
}
