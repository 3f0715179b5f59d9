// Command httpio fetches HTTP resources and talks to WebSocket endpoints
// over plain, TLS or SOCKS5 proxied connections.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/simonfxr/httpio"
)

type globalOptions struct {
	verbose  bool
	timeout  time.Duration
	proxy    string
	tor      bool
	forward  string
	insecure bool

	log *zap.Logger
}

func (g *globalOptions) setupLogger() error {
	cfg := zap.NewDevelopmentConfig()
	if !g.verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return err
	}
	g.log = log
	return nil
}

func (g *globalOptions) transport() (*httpio.Transport, error) {
	o := httpio.Options{
		ReadTimeout:  g.timeout,
		WriteTimeout: g.timeout,
		Logger:       g.log,
	}
	if g.forward != "" {
		d, err := proxy.SOCKS5("tcp", g.forward, nil, proxy.Direct)
		if err != nil {
			return nil, err
		}
		o.Forward = d.(proxy.ContextDialer)
	}
	if g.insecure {
		o.TLSConfig = insecureTLS()
	}
	return httpio.NewTransport(o), nil
}

// dial opens a connection to host:service, through the configured SOCKS5
// proxy if any. Proxied https connections are secured after the CONNECT.
func (g *globalOptions) dial(ctx context.Context, t *httpio.Transport, host, service string) (*httpio.Conn, error) {
	var p *httpio.Proxy
	switch {
	case g.tor:
		p = &httpio.TorProxy
	case g.proxy != "":
		h, ps, err := net.SplitHostPort(g.proxy)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(ps)
		if err != nil {
			return nil, fmt.Errorf("proxy port: %w", err)
		}
		p = &httpio.Proxy{Host: h, Port: port}
	}
	if p == nil {
		return t.DialContext(ctx, host, service)
	}
	c, err := t.DialSOCKS5Context(ctx, host, service, *p)
	if err != nil {
		return nil, err
	}
	if service == "https" {
		if err := c.StartTLS(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{timeout: 30 * time.Second}
	cmd := &cobra.Command{
		Use:           "httpio",
		Short:         "Minimal HTTP/1.1 and WebSocket client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setupLogger()
		},
	}
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug diagnostics")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", g.timeout, "read and write readiness timeout (-1ns waits forever)")
	cmd.PersistentFlags().StringVar(&g.proxy, "proxy", "", "SOCKS5 proxy host:port; the target is resolved by the proxy")
	cmd.PersistentFlags().BoolVar(&g.tor, "tor", false, "use the local Tor SOCKS5 proxy")
	cmd.PersistentFlags().StringVar(&g.forward, "forward", "", "SOCKS5 proxy host:port used for every raw TCP connect")
	cmd.PersistentFlags().BoolVar(&g.insecure, "insecure", false, "skip TLS certificate verification")

	cmd.AddCommand(newGetCommand(g), newWebSocketCommand(g))
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "httpio:", err)
		os.Exit(1)
	}
}
