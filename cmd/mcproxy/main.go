// Command mcproxy terminates a Minecraft client locally, re-originates the
// connection to the real server, and splices the two streams with the
// authentication handshake defeated so traffic can be inspected and
// injected. The optional positional argument overrides the upstream host.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/1nfdev/mcbuild/config"
	"github.com/1nfdev/mcbuild/proxy"
	"github.com/1nfdev/mcbuild/sessionserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "mcproxy [server-host]",
		Short:        "Man-in-the-middle proxy for the Minecraft line protocol",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.UpstreamHost = args[0]
			}
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("parse log level: %w", err)
			}
			logrus.SetLevel(level)
			return run(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration")
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := &sessionserver.Store{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessionserver.NewServer(store).ListenAndServe(ctx, cfg.SessionPort)
	})
	g.Go(func() error {
		return proxy.New(cfg, store).ListenAndServe(ctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logrus.Info("terminating")
	return nil
}
