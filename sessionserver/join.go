package sessionserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// joinPath is the session-service route shared by the hijack endpoint and
// the real upstream.
const joinPath = "/session/minecraft/join"

var joinClient = &http.Client{Timeout: 15 * time.Second}

type joinRequest struct {
	AccessToken     string `json:"accessToken"`
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
}

// Join replays the captured join request against the real session service,
// substituting the digest recomputed over the proxy's upstream-facing key
// material. host is the service hostname (a scheme may be included for
// testing; https is assumed otherwise). A non-2xx status is returned as an
// error; the caller logs it and proceeds, the upstream will drop the login
// itself if the join really failed.
func Join(host string, creds Credentials, digest string) error {
	body, err := json.Marshal(joinRequest{
		AccessToken:     creds.AccessToken,
		SelectedProfile: creds.SelectedProfile,
		ServerID:        digest,
	})
	if err != nil {
		return fmt.Errorf("encode join request: %w", err)
	}

	base := host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	req, err := http.NewRequest(http.MethodPost, base+joinPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", "Java/1.6.0_27")

	resp, err := joinClient.Do(req)
	if err != nil {
		return fmt.Errorf("post session join: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("session service rejected join: %s", resp.Status)
	}
	return nil
}
