package httpio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	socksVersion5     = 0x05
	socksCmdConnect   = 0x01
	socksNoAuth       = 0x00
	socksAtypIPv4     = 0x01
	socksAtypDomain   = 0x03
	socksAtypIPv6     = 0x04
	socksMaxHostBytes = 0xFF
)

// Proxy identifies a SOCKS5 proxy.
type Proxy struct {
	Host string
	Port int
}

// TorProxy is the SOCKS5 port of a local Tor daemon.
var TorProxy = Proxy{Host: "127.0.0.1", Port: 9050}

func (p Proxy) String() string { return p.Host + ":" + portString(p.Port) }

func socksServicePort(service string) (uint16, bool) {
	switch service {
	case "http":
		return 80, true
	case "https":
		return 443, true
	}
	return 0, false
}

// DialSOCKS5 connects to host on service through the SOCKS5 proxy p. Only
// the "http" and "https" services are supported. The target host is passed
// to the proxy by name and never resolved locally.
func (t *Transport) DialSOCKS5(host, service string, p Proxy) (*Conn, error) {
	return t.DialSOCKS5Context(context.Background(), host, service, p)
}

// DialSOCKS5Context is DialSOCKS5 bounded by ctx.
func (t *Transport) DialSOCKS5Context(ctx context.Context, host, service string, p Proxy) (*Conn, error) {
	c := &Conn{t: t, host: host, service: service, proxy: &p}
	c.readTimeout, c.writeTimeout = t.opts.readTimeout(), t.opts.writeTimeout()
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Proxy returns the SOCKS5 proxy the connection is tunneled through, or nil.
func (c *Conn) Proxy() *Proxy { return c.proxy }

// dialSOCKS5 connects to the stored proxy and asks it for a tunnel to the
// stored host and service.
func (c *Conn) dialSOCKS5(ctx context.Context) error {
	port, ok := socksServicePort(c.service)
	if !ok {
		return fmt.Errorf("%w %q", ErrSocksService, c.service)
	}
	if len(c.host) > socksMaxHostBytes {
		return &SocksError{Text: "host name too long"}
	}
	p := *c.proxy
	if err := c.dialDirect(ctx, p.Host, portString(p.Port)); err != nil {
		return err
	}
	if err := c.socksConnect(c.host, port); err != nil {
		if errors.Is(err, ErrSocks) {
			c.t.log.Warn("socks5 negotiation failed", zap.Stringer("proxy", p),
				zap.String("target", c.host), zap.Error(err))
		}
		c.release()
		return err
	}
	return nil
}

func (c *Conn) socksConnect(host string, port uint16) error {
	if _, err := c.Write([]byte{socksVersion5, 1, socksNoAuth}); err != nil {
		return err
	}
	var buf [socksMaxHostBytes + 2]byte
	if err := c.readFull(buf[:2]); err != nil {
		return err
	}
	if buf[0] != socksVersion5 {
		return &SocksError{Text: fmt.Sprintf("unexpected version 0x%02x", buf[0])}
	}
	if buf[1] != socksNoAuth {
		return &SocksError{Text: "proxy requires authentication"}
	}

	req := make([]byte, 0, 7+len(host))
	req = append(req, socksVersion5, socksCmdConnect, 0, socksAtypDomain, byte(len(host)))
	req = append(req, host...)
	req = binary.BigEndian.AppendUint16(req, port)
	if _, err := c.Write(req); err != nil {
		return err
	}

	if err := c.readFull(buf[:4]); err != nil {
		return err
	}
	if buf[0] != socksVersion5 {
		return &SocksError{Text: fmt.Sprintf("unexpected version 0x%02x", buf[0])}
	}
	if reply := SocksReply(buf[1]); reply != SocksSucceeded {
		return &SocksError{Reply: reply}
	}
	n := 0
	switch buf[3] {
	case socksAtypIPv4:
		n = 4
	case socksAtypIPv6:
		n = 16
	case socksAtypDomain:
		if err := c.readFull(buf[:1]); err != nil {
			return err
		}
		n = int(buf[0])
	default:
		return &SocksError{Text: fmt.Sprintf("unknown address type 0x%02x", buf[3])}
	}
	// bound address and port
	return c.readFull(buf[:n+2])
}
