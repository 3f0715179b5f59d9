// Package httpio provides a client side transport with a minimal HTTP/1.1
// response reader and WebSocket framing on top of it.
package httpio

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"io"
	mrand "math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/proxy"
)

const (
	// Forever makes a readiness poll block until the socket is ready.
	Forever time.Duration = -1

	// DefaultTimeout is used by the protocol engines for every read.
	DefaultTimeout = 1000 * time.Second

	// MaxAddresses is the maximum number of resolved candidates tried by Dial.
	MaxAddresses = 32

	// MaxLineLength bounds a status line or chunk trailer line.
	MaxLineLength = 8 << 10

	// MaxHeaderBytes bounds the header block of a response.
	MaxHeaderBytes = 64 << 10

	// MaxChunkSizeDigits bounds the hex digits of a chunk-size line.
	MaxChunkSizeDigits = 15

	streamChunkSize = 0x4000
)

// DefaultSecurePorts lists the ports on which Dial engages TLS.
var DefaultSecurePorts = []int{443, 993, 6984}

// Options configures a Transport. The zero value is usable.
type Options struct {
	ReadTimeout      time.Duration       // Readiness timeout for engine reads, DefaultTimeout if zero.
	WriteTimeout     time.Duration       // Readiness timeout for writes, DefaultTimeout if zero.
	HandshakeTimeout time.Duration       // TLS handshake bound, 30s if zero.
	ReadLimit        int                 // Maximum size of a reassembled WebSocket message, 16MiB if zero.
	BodyLimit        int64               // Maximum size of a response body before and after inflating, 64MiB if zero.
	SecurePorts      []int               // Ports wrapped in TLS, DefaultSecurePorts if nil.
	TLSConfig        *tls.Config         // Base TLS configuration, cloned per connection.
	Forward          proxy.ContextDialer // Dialer for raw TCP connects, proxy.Direct if nil.
	Resolver         *net.Resolver       // DNS resolver, net.DefaultResolver if nil.
	Rand             io.Reader           // Entropy for masks and secrets, crypto/rand if nil.
	Logger           *zap.Logger         // Diagnostics, warnings to stderr if nil.
}

func def(v, def, low time.Duration) time.Duration {
	if v == 0 {
		v = def
	}
	return max(v, low)
}

func (o Options) readTimeout() time.Duration  { return def(o.ReadTimeout, DefaultTimeout, Forever) }
func (o Options) writeTimeout() time.Duration { return def(o.WriteTimeout, DefaultTimeout, Forever) }
func (o Options) handshakeTimeout() time.Duration {
	return def(o.HandshakeTimeout, 30*time.Second, time.Millisecond)
}

func (o Options) readLimit() int {
	if o.ReadLimit <= 0 {
		return 16 << 20
	}
	return o.ReadLimit
}

func (o Options) bodyLimit() int64 {
	if o.BodyLimit <= 0 {
		return 64 << 20
	}
	return o.BodyLimit
}

// Transport is the lifecycle object shared by connections. It owns the TLS
// configuration and the mutex serializing name resolution and secure
// channel construction. Create one per application and Close it on exit.
type Transport struct {
	opts     Options
	log      *zap.Logger
	forward  proxy.ContextDialer
	resolver *net.Resolver
	secure   map[int]bool
	tlsConf  *tls.Config

	mu  sync.Mutex // serializes resolution and secure channel setup
	rmu sync.Mutex // guards fallback
	// fallback randomness if Rand fails
	fallback *mrand.Rand
}

func defaultLogger() *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.WarnLevel))
}

// NewTransport creates a Transport from the given options.
func NewTransport(o Options) *Transport {
	t := &Transport{opts: o, log: o.Logger, forward: o.Forward, resolver: o.Resolver}
	if t.log == nil {
		t.log = defaultLogger()
	}
	if t.forward == nil {
		t.forward = proxy.Direct
	}
	if t.resolver == nil {
		t.resolver = net.DefaultResolver
	}
	if t.opts.Rand == nil {
		t.opts.Rand = rand.Reader
	}
	ports := o.SecurePorts
	if ports == nil {
		ports = DefaultSecurePorts
	}
	t.secure = make(map[int]bool, len(ports))
	for _, p := range ports {
		t.secure[p] = true
	}
	if o.TLSConfig != nil {
		t.tlsConf = o.TLSConfig.Clone()
	} else {
		t.tlsConf = &tls.Config{}
	}
	t.fallback = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	return t
}

// Logger returns the logger diagnostics are written to.
func (t *Transport) Logger() *zap.Logger { return t.log }

// Close releases the resources held by the transport. Connections created
// from it stay usable until closed themselves.
func (t *Transport) Close() error {
	_ = t.log.Sync()
	return nil
}

// IsSecurePort reports whether Dial wraps connections to port in TLS.
func (t *Transport) IsSecurePort(port int) bool { return t.secure[port] }

// random fills p from the configured entropy source, falling back to a
// pseudo random generator when the source fails.
func (t *Transport) random(p []byte) {
	if _, err := io.ReadFull(t.opts.Rand, p); err == nil {
		return
	}
	t.rmu.Lock()
	_, _ = t.fallback.Read(p)
	t.rmu.Unlock()
}

// resolve returns up to MaxAddresses IPv4 candidates for host and service.
func (t *Transport) resolve(ctx context.Context, host, service string) ([]*net.TCPAddr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	port, err := t.resolver.LookupPort(ctx, "tcp", service)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	}
	ips, err := t.resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: no ipv4 address for %s", ErrResolve, host)
	}
	addrs := make([]*net.TCPAddr, 0, min(len(ips), MaxAddresses))
	for _, ip := range ips[:min(len(ips), MaxAddresses)] {
		addrs = append(addrs, &net.TCPAddr{IP: ip, Port: port})
	}
	return addrs, nil
}

// Dial connects to host on service (a port number or a service name).
func (t *Transport) Dial(host, service string) (*Conn, error) {
	return t.DialContext(context.Background(), host, service)
}

// DialContext connects to host on service. The context bounds resolution,
// connection attempts and the TLS handshake.
func (t *Transport) DialContext(ctx context.Context, host, service string) (*Conn, error) {
	c := &Conn{t: t, host: host, service: service}
	c.readTimeout, c.writeTimeout = t.opts.readTimeout(), t.opts.writeTimeout()
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConn wraps an already connected net.Conn without any handshakes.
// Useful to run the protocol engines over an existing stream.
func (t *Transport) NewConn(nc net.Conn, host, service string) *Conn {
	c := &Conn{t: t, nc: nc, host: host, service: service}
	c.readTimeout, c.writeTimeout = t.opts.readTimeout(), t.opts.writeTimeout()
	if a, ok := nc.RemoteAddr().(*net.TCPAddr); ok {
		c.addr = a
	}
	return c
}

func (t *Transport) connect(ctx context.Context, addrs []*net.TCPAddr) (net.Conn, *net.TCPAddr, error) {
	var lastErr error
	for _, a := range addrs {
		nc, err := t.forward.DialContext(ctx, "tcp", a.String())
		if err != nil {
			t.log.Debug("connect attempt failed", zap.Stringer("addr", a), zap.Error(err))
			lastErr = err
			continue
		}
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
		}
		return nc, a, nil
	}
	return nil, nil, fmt.Errorf("%w: %w", ErrConnect, lastErr)
}

func (t *Transport) tlsConfig(serverName string) *tls.Config {
	conf := t.tlsConf.Clone()
	if conf.ServerName == "" {
		conf.ServerName = serverName
	}
	return conf
}

func portString(port int) string { return strconv.Itoa(port) }
