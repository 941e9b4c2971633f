package proxy

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/1nfdev/mcbuild/config"
	"github.com/1nfdev/mcbuild/mcs"
	"github.com/1nfdev/mcbuild/sessionserver"
)

// Proxy accepts game clients on the local port and splices each one to the
// upstream server. Sessions are handled strictly one at a time; a second
// client connecting mid-session waits in the accept queue.
type Proxy struct {
	cfg     *config.Config
	creds   *sessionserver.Store
	log     *logrus.Entry
	counter int
}

// New builds a proxy around the given configuration and credentials store.
func New(cfg *config.Config, creds *sessionserver.Store) *Proxy {
	return &Proxy{
		cfg:   cfg,
		creds: creds,
		log:   logrus.WithField("component", "proxy"),
	}
}

// ListenAndServe binds the game listener and serves sessions until ctx is
// cancelled. A failure to bind is fatal; per-session errors are logged and
// the next client is accepted.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("bind game listener: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	p.log.Infof("listening on :%d, proxying to %s", p.cfg.ListenPort, p.cfg.UpstreamAddr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept game client: %w", err)
		}
		p.handleConn(ctx, conn)
	}
}

// handleConn runs one full session on the accepted client connection.
func (p *Proxy) handleConn(ctx context.Context, client net.Conn) {
	p.counter++
	log := p.log.WithField("session", p.counter)
	log.Infof("accepted %s", client.RemoteAddr())

	upstream, err := net.Dial("tcp", p.cfg.UpstreamAddr())
	if err != nil {
		log.WithError(err).Error("dial upstream failed")
		client.Close()
		return
	}

	trace, err := mcs.Create(p.cfg.SavedDir)
	if err != nil {
		log.WithError(err).Error("open trace failed")
		client.Close()
		upstream.Close()
		return
	}
	log.Infof("tracing to %s", trace.Path())

	sess := NewSession(client, upstream, p.creds, p.cfg.SessionHost, trace, log)
	if err := sess.Run(ctx); err != nil {
		log.WithError(err).Error("session ended with error")
		return
	}
	log.Info("session ended")
}
