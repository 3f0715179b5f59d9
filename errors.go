package httpio

import (
	"errors"
	"fmt"
)

var (
	// ErrResolve is returned when a host/service pair cannot be resolved to
	// at least one IPv4 address.
	ErrResolve = errors.New("httpio: resolution failed")

	// ErrConnect is returned when no resolved candidate accepted the connection.
	ErrConnect = errors.New("httpio: connect failed")

	// ErrTLSHandshake is returned when the client TLS handshake fails.
	ErrTLSHandshake = errors.New("httpio: tls handshake failed")

	// ErrTimeout is returned when a readiness poll expires.
	ErrTimeout = errors.New("httpio: i/o timeout")

	// ErrIO is returned for transport failures.
	ErrIO = errors.New("httpio: i/o error")

	// ErrClosed is returned when a read or write transferred zero bytes. A
	// graceful close by the peer additionally matches io.EOF.
	ErrClosed = errors.New("httpio: connection closed")

	// ErrProtocol is returned for malformed status lines, headers, chunk
	// sizes and frame headers.
	ErrProtocol = errors.New("httpio: protocol parse error")

	// ErrProtocolViolation is returned when the peer sends well formed data
	// that is not acceptable to a client.
	ErrProtocolViolation = errors.New("httpio: protocol violation")

	// ErrMaskedFrame is returned when a server sends a masked frame.
	ErrMaskedFrame = fmt.Errorf("%w: masked server frame", ErrProtocolViolation)

	// ErrEmptyMessage is returned when a reassembled message has no payload.
	ErrEmptyMessage = fmt.Errorf("%w: empty message", ErrProtocolViolation)

	// ErrReadLimit is returned when a message or response body exceeds its
	// configured limit.
	ErrReadLimit = errors.New("httpio: read limit exceeded")

	// ErrDecompress is returned when an encoded body cannot be inflated.
	ErrDecompress = errors.New("httpio: decompression failed")

	// ErrBadHandshake is returned when the server response to the opening
	// WebSocket handshake is invalid.
	ErrBadHandshake = errors.New("httpio: bad websocket handshake")

	// ErrSocks is matched by every *SocksError.
	ErrSocks = errors.New("httpio: socks5 proxy error")

	// ErrSocksService is returned when a SOCKS5 target service has no known port.
	ErrSocksService = fmt.Errorf("%w: unsupported service", ErrSocks)
)

// SocksReply is the status byte of a SOCKS5 CONNECT reply.
type SocksReply byte

const (
	SocksSucceeded SocksReply = iota
	SocksGeneralFailure
	SocksNotAllowed
	SocksNetworkUnreachable
	SocksHostUnreachable
	SocksConnectionRefused
	SocksTTLExpired
	SocksCommandNotSupported
	SocksAddressNotSupported
)

var socksReplyText = [...]string{
	SocksSucceeded:           "succeeded",
	SocksGeneralFailure:      "general server failure",
	SocksNotAllowed:          "connection not allowed",
	SocksNetworkUnreachable:  "network unreachable",
	SocksHostUnreachable:     "host unreachable",
	SocksConnectionRefused:   "connection refused",
	SocksTTLExpired:          "ttl expired",
	SocksCommandNotSupported: "command not supported",
	SocksAddressNotSupported: "address type not supported",
}

func (r SocksReply) String() string {
	if int(r) < len(socksReplyText) {
		return socksReplyText[r]
	}
	return fmt.Sprintf("unknown reply 0x%02x", byte(r))
}

// SocksError reports a failed SOCKS5 negotiation.
type SocksError struct {
	Reply SocksReply // The reply status, SocksSucceeded for malformed replies.
	Text  string     // Set for failures not described by a reply code.
}

func (e *SocksError) Error() string {
	if e.Text != "" {
		return "socks5: " + e.Text
	}
	return "socks5: " + e.Reply.String()
}

// Is makes every SocksError match ErrSocks.
func (e *SocksError) Is(target error) bool { return target == ErrSocks }
