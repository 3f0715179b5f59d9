package httpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Conn is a client connection, optionally secured with TLS. A Conn must
// not be used from more than one goroutine at a time.
type Conn struct {
	t            *Transport
	addr         *net.TCPAddr
	nc           net.Conn
	sc           *SecureChannel
	host         string
	service      string
	readTimeout  time.Duration
	writeTimeout time.Duration

	proxy    *Proxy // set for connections tunneled through SOCKS5
	startTLS bool   // secured after connect by StartTLS

	errorHandler   func(c *Conn, code int, err error)
	wsCloseHandler func(c *Conn, code int, text string)
	wsErrorHandler func(c *Conn, err error)
}

// dial establishes the socket for the stored identity: directly, or through
// the stored proxy. Connections that were secured with StartTLS are secured
// again.
func (c *Conn) dial(ctx context.Context) error {
	var err error
	if c.proxy != nil {
		err = c.dialSOCKS5(ctx)
	} else {
		err = c.dialDirect(ctx, c.host, c.service)
	}
	if err != nil || !c.startTLS || c.sc != nil {
		return err
	}
	if c.sc, err = newSecureChannel(ctx, c.t, c.nc, c.host); err != nil {
		c.release()
	}
	return err
}

func (c *Conn) dialDirect(ctx context.Context, host, service string) error {
	addrs, err := c.t.resolve(ctx, host, service)
	if err != nil {
		return err
	}
	nc, addr, err := c.t.connect(ctx, addrs)
	if err != nil {
		return err
	}
	var sc *SecureChannel
	if c.t.IsSecurePort(addr.Port) {
		if sc, err = newSecureChannel(ctx, c.t, nc, host); err != nil {
			nc.Close()
			return err
		}
	}
	c.nc, c.sc, c.addr = nc, sc, addr
	return nil
}

// StartTLS wraps an established plain connection in a secure channel, for
// example to speak https through a SOCKS5 proxy.
func (c *Conn) StartTLS(ctx context.Context) error {
	if c == nil || c.nc == nil {
		return net.ErrClosed
	}
	if c.sc != nil {
		return nil
	}
	sc, err := newSecureChannel(ctx, c.t, c.nc, c.host)
	if err != nil {
		return err
	}
	c.sc, c.startTLS = sc, true
	return nil
}

// Reconnect resolves and dials the stored host and service again, replacing
// the socket and secure channel. The previous socket is closed first.
// Proxied connections reconnect through the same proxy.
func (c *Conn) Reconnect() error {
	return c.ReconnectContext(context.Background())
}

// ReconnectContext is Reconnect bounded by ctx.
func (c *Conn) ReconnectContext(ctx context.Context) error {
	if c == nil {
		return net.ErrClosed
	}
	c.release()
	return c.dial(ctx)
}

func (c *Conn) release() error {
	var err error
	if c.sc != nil {
		err = c.sc.Close()
	} else if c.nc != nil {
		if tc, ok := c.nc.(*net.TCPConn); ok {
			_ = tc.CloseRead()
			_ = tc.CloseWrite()
		}
		err = c.nc.Close()
	}
	c.nc, c.sc, c.addr = nil, nil, nil
	return err
}

// Close shuts down and closes the connection. It is safe to call Close on a
// nil or already closed Conn.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	err := c.release()
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Host returns the host this connection talks to. For proxied connections
// this is the target host, not the proxy.
func (c *Conn) Host() string { return c.host }

// Service returns the service the connection was dialed with.
func (c *Conn) Service() string { return c.service }

// Addr returns the address the socket is connected to.
func (c *Conn) Addr() *net.TCPAddr { return c.addr }

// NetConn returns the underlying network connection.
func (c *Conn) NetConn() net.Conn { return c.nc }

// Secure returns the secure channel, or nil for a plain connection.
func (c *Conn) Secure() *SecureChannel { return c.sc }

// Transport returns the transport the connection was created by.
func (c *Conn) Transport() *Transport { return c.t }

// SetReadTimeout sets the timeout used by the protocol engines for reads.
func (c *Conn) SetReadTimeout(d time.Duration) { c.readTimeout = max(d, Forever) }

// SetWriteTimeout sets the readiness timeout used by Write.
func (c *Conn) SetWriteTimeout(d time.Duration) { c.writeTimeout = max(d, Forever) }

// SetErrorHandler sets a handler invoked whenever a read or write fails with
// an operating system error. The handler cannot change the result.
func (c *Conn) SetErrorHandler(h func(c *Conn, code int, err error)) { c.errorHandler = h }

// SetWebSocketCloseHandler sets the handler for close messages received by
// ReadFrame.
func (c *Conn) SetWebSocketCloseHandler(h func(c *Conn, code int, text string)) {
	c.wsCloseHandler = h
}

// SetWebSocketErrorHandler sets the handler for ReadFrame failures.
func (c *Conn) SetWebSocketErrorHandler(h func(c *Conn, err error)) { c.wsErrorHandler = h }

// HasData waits up to timeout for the connection to become readable.
func (c *Conn) HasData(timeout time.Duration) bool {
	if c == nil || c.nc == nil {
		return false
	}
	if c.sc != nil {
		return c.sc.HasData(timeout)
	}
	return pollRead(c.nc, timeout)
}

// WantsData waits up to timeout for the connection to become writable.
func (c *Conn) WantsData(timeout time.Duration) bool {
	if c == nil || c.nc == nil {
		return false
	}
	return pollWrite(c.nc, timeout)
}

// Read waits up to timeout for data and performs at most one receive of up
// to len(p) bytes. Receiving zero bytes is reported as an error.
func (c *Conn) Read(p []byte, timeout time.Duration) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c == nil || c.nc == nil {
		return 0, net.ErrClosed
	}
	if c.sc != nil {
		n, err = c.sc.Receive(p, timeout)
	} else {
		if !pollRead(c.nc, timeout) {
			return 0, ErrTimeout
		}
		setDeadline(c.nc.SetReadDeadline, timeout)
		n, err = c.nc.Read(p)
	}
	return n, c.ioResult(n, err)
}

// Write waits for the connection to become writable and performs one send.
// Sending zero bytes is reported as an error.
func (c *Conn) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c == nil || c.nc == nil {
		return 0, net.ErrClosed
	}
	if !c.WantsData(c.writeTimeout) {
		return 0, ErrTimeout
	}
	if c.sc != nil {
		n, err = c.sc.Send(p, c.writeTimeout)
	} else {
		setDeadline(c.nc.SetWriteDeadline, c.writeTimeout)
		n, err = c.nc.Write(p)
	}
	return n, c.ioResult(n, err)
}

func (c *Conn) ioResult(n int, err error) error {
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) && errno != 0 && c.errorHandler != nil {
			c.errorHandler(c, int(errno), err)
		}
		if errors.Is(err, io.EOF) && n == 0 {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		if n > 0 {
			return nil
		}
		if errors.Is(err, ErrTimeout) {
			return err
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if n == 0 {
		return ErrClosed
	}
	return nil
}

// WriteLine writes the formatted line followed by CRLF. The terminator is
// written with a separate call. It returns the number of bytes written
// for the formatted part.
func (c *Conn) WriteLine(format string, args ...any) (int, error) {
	n, err := c.Write([]byte(fmt.Sprintf(format, args...)))
	if err != nil {
		return n, err
	}
	if _, err = c.WriteNewline(); err != nil {
		return n, err
	}
	return n, nil
}

// WriteNewline writes a CRLF line terminator.
func (c *Conn) WriteNewline() (int, error) {
	return c.Write([]byte("\r\n"))
}

// readFull reads exactly len(p) bytes, looping over partial reads.
func (c *Conn) readFull(p []byte) error {
	for len(p) > 0 {
		n, err := c.Read(p, c.readTimeout)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// writeFull writes all of p, looping over partial writes.
func (c *Conn) writeFull(p []byte) error {
	for len(p) > 0 {
		n, err := c.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// readByte reads a single byte using the engine read timeout.
func (c *Conn) readByte() (byte, error) {
	var b [1]byte
	if _, err := c.Read(b[:], c.readTimeout); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Conn) logger() *zap.Logger {
	return c.t.log.With(zap.String("host", c.host), zap.String("service", c.service))
}
