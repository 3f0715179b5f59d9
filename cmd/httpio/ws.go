package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simonfxr/httpio"
)

type wsOptions struct {
	service  string
	messages []string
	count    int
}

func newWebSocketCommand(g *globalOptions) *cobra.Command {
	opts := &wsOptions{service: "http", count: -1}
	cmd := &cobra.Command{
		Use:   "ws HOST [PATH]",
		Short: "Open a WebSocket, send text messages and print what arrives",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) > 1 {
				path = args[1]
			}
			return runWebSocket(cmd, g, opts, args[0], path)
		},
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", opts.service, "service name or port")
	cmd.Flags().StringArrayVarP(&opts.messages, "text", "t", nil, "text message to send after the handshake (repeatable)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", opts.count, "stop after this many messages (-1 reads until close)")
	return cmd
}

func runWebSocket(cmd *cobra.Command, g *globalOptions, opts *wsOptions, host, path string) error {
	t, err := g.transport()
	if err != nil {
		return err
	}
	defer t.Close()
	conn, err := g.dial(cmd.Context(), t, host, opts.service)
	if err != nil {
		return err
	}
	defer conn.Close()

	closed := false
	conn.SetWebSocketCloseHandler(func(c *httpio.Conn, code int, text string) {
		closed = true
		g.log.Info("peer closed", zap.Int("code", code), zap.String("reason", text))
	})
	conn.SetWebSocketErrorHandler(func(c *httpio.Conn, err error) {
		g.log.Debug("read frame", zap.String("host", c.Host()), zap.Error(err))
	})

	if _, err := httpio.Upgrade(conn, path, nil); err != nil {
		return err
	}
	for _, m := range opts.messages {
		if err := httpio.SendText(conn, m); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	for n := 0; !closed && (opts.count < 0 || n < opts.count); n++ {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		f, err := httpio.ReadFrame(conn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[%s] %s\n", f.Opcode, f.Data())
	}
	if closed {
		return nil
	}
	return httpio.SendClose(conn, httpio.CloseNormalClosure, "")
}
