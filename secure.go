package httpio

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// maxPlaintext is the largest TLS record payload, sized so a single fill
// drains one record.
const maxPlaintext = 16 << 10

// SecureChannel is a TLS client session over one connected socket. It
// buffers decrypted bytes so readiness can account for data already pulled
// out of the record layer.
type SecureChannel struct {
	tc *tls.Conn
	br *bufio.Reader
}

func newSecureChannel(ctx context.Context, t *Transport, nc net.Conn, serverName string) (*SecureChannel, error) {
	t.mu.Lock()
	tc := tls.Client(nc, t.tlsConfig(serverName))
	t.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, t.opts.handshakeTimeout())
	defer cancel()
	if err := tc.HandshakeContext(ctx); err != nil {
		t.log.Warn("tls handshake failed", zap.String("server", serverName), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTLSHandshake, err)
	}
	return &SecureChannel{tc: tc, br: bufio.NewReaderSize(tc, maxPlaintext)}, nil
}

// ConnectionState returns details about the negotiated session.
func (s *SecureChannel) ConnectionState() tls.ConnectionState { return s.tc.ConnectionState() }

// Pending returns the number of decrypted bytes not yet handed out.
func (s *SecureChannel) Pending() int { return s.br.Buffered() }

// HasData reports whether decrypted bytes are buffered, otherwise waits up
// to timeout for the record layer to produce some.
func (s *SecureChannel) HasData(timeout time.Duration) bool { return s.fill(timeout) == nil }

func (s *SecureChannel) fill(timeout time.Duration) error {
	if s.br.Buffered() > 0 {
		return nil
	}
	_ = s.tc.SetReadDeadline(deadline(timeout))
	_, err := s.br.Peek(1)
	if s.br.Buffered() > 0 {
		return nil
	}
	if isWouldBlock(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// Receive waits up to timeout for decrypted data and returns what one read
// of the channel buffer yields. Partial records are retried by the record
// layer until the deadline passes.
func (s *SecureChannel) Receive(p []byte, timeout time.Duration) (int, error) {
	if err := s.fill(timeout); err != nil {
		return 0, err
	}
	return s.br.Read(p)
}

// Send hands p to the record layer, which writes it as one or more records.
func (s *SecureChannel) Send(p []byte, timeout time.Duration) (int, error) {
	_ = s.tc.SetWriteDeadline(deadline(timeout))
	return s.tc.Write(p)
}

// Close sends close_notify and closes the socket.
func (s *SecureChannel) Close() error {
	if s == nil {
		return nil
	}
	return s.tc.Close()
}

func isWouldBlock(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
