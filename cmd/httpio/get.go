package main

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simonfxr/httpio"
)

func insecureTLS() *tls.Config { return &tls.Config{InsecureSkipVerify: true} }

// writeAll sends p, looping over partial writes.
func writeAll(conn *httpio.Conn, p []byte) error {
	for len(p) > 0 {
		n, err := conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

type getOptions struct {
	service string
	cookie  string
	data    []string
	headers bool
}

func newGetCommand(g *globalOptions) *cobra.Command {
	opts := &getOptions{service: "http"}
	cmd := &cobra.Command{
		Use:   "get HOST [PATH]",
		Short: "Fetch a resource and print its body",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) > 1 {
				path = args[1]
			}
			return runGet(cmd, g, opts, args[0], path)
		},
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", opts.service, "service name or port")
	cmd.Flags().StringVar(&opts.cookie, "cookie", "", "cookie header to send")
	cmd.Flags().StringArrayVarP(&opts.data, "data", "d", nil, "name=value form field; switches to POST (repeatable)")
	cmd.Flags().BoolVarP(&opts.headers, "include", "i", false, "print status line and headers")
	return cmd
}

func runGet(cmd *cobra.Command, g *globalOptions, opts *getOptions, host, path string) error {
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

	var form httpio.PostParameters
	for _, kv := range opts.data {
		k, v, _ := strings.Cut(kv, "=")
		form.Set(k, v)
	}
	method := "GET"
	if form.Len() > 0 {
		method = "POST"
	}
	var req bytes.Buffer
	fmt.Fprintf(&req, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&req, "Host: %s\r\n", host)
	req.WriteString("Connection: close\r\n")
	req.WriteString("Accept-Encoding: gzip\r\n")
	if opts.cookie != "" {
		fmt.Fprintf(&req, "Cookie: %s\r\n", opts.cookie)
	}
	if form.Len() > 0 {
		body := form.Encode()
		req.WriteString("Content-Type: application/x-www-form-urlencoded\r\n")
		fmt.Fprintf(&req, "Content-Length: %d\r\n\r\n", len(body))
		req.WriteString(body)
	} else {
		req.WriteString("\r\n")
	}
	if err := writeAll(conn, req.Bytes()); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	resp := httpio.ReadResponse(conn)
	if err := resp.Err(); err != nil {
		g.log.Warn("incomplete response", zap.String("host", host), zap.Error(err))
	}
	out := cmd.OutOrStdout()
	if opts.headers && resp.Status != nil {
		fmt.Fprintf(out, "%s %d %s\n", resp.Status.Proto, resp.Status.Code, resp.Status.Reason)
		for i := 0; i < resp.Headers.Len(); i++ {
			h := resp.Headers.At(i)
			fmt.Fprintf(out, "%s: %s\n", h.Key, h.Value)
		}
		if c := resp.Headers.UpdateCookie(""); c != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "cookies: %s\n", c)
		}
		fmt.Fprintln(out)
	}
	_, err = out.Write(resp.Body.Bytes())
	if err == nil && resp.Status == nil {
		err = resp.Err()
	}
	return err
}
