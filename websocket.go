package httpio

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Opcode is the type of a WebSocket frame.
type Opcode byte

const (
	// ContinuationFrame continues a fragmented message.
	ContinuationFrame Opcode = 0x0
	// TextFrame carries UTF-8 text.
	TextFrame Opcode = 0x1
	// BinaryFrame carries binary data.
	BinaryFrame Opcode = 0x2
	// CloseFrame closes the connection.
	CloseFrame Opcode = 0x8
	// PingFrame is a keepalive request.
	PingFrame Opcode = 0x9
	// PongFrame answers a ping.
	PongFrame Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case ContinuationFrame:
		return "continuation"
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	case CloseFrame:
		return "close"
	case PingFrame:
		return "ping"
	case PongFrame:
		return "pong"
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}

const (
	CloseNormalClosure    = 1000
	CloseGoingAway        = 1001
	CloseProtocolError    = 1002
	CloseNoStatusReceived = 1005
	CloseMessageTooBig    = 1009
)

const (
	websocketGUID  = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	secretAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	secretSize     = 16
	maxFrameHeader = 14
)

// Frame is one reassembled WebSocket message.
type Frame struct {
	Opcode Opcode
	data   []byte
}

// Data returns the message payload.
func (f *Frame) Data() []byte { return f.data }

// Len returns the payload length.
func (f *Frame) Len() int { return len(f.data) }

// Text returns the payload as a string.
func (f *Frame) Text() string { return string(f.data) }

// Take transfers the payload to the caller and empties the frame.
func (f *Frame) Take() []byte {
	d := f.data
	f.data = nil
	return d
}

// CloseStatus decodes the status code and reason of a close message.
func (f *Frame) CloseStatus() (code int, text string) {
	if len(f.data) < 2 {
		return CloseNoStatusReceived, string(f.data)
	}
	return int(binary.BigEndian.Uint16(f.data[:2])), string(f.data[2:])
}

// AcceptKey derives the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	if key == "" {
		return ""
	}
	hbs := sha1.Sum([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(hbs[:])
}

// CheckKey reports whether accept was derived from secret.
func CheckKey(accept, secret string) bool {
	return accept != "" && accept == AcceptKey(secret)
}

// Secret returns a fresh Sec-WebSocket-Key: sixteen characters of a
// shuffled alphanumeric alphabet, base64 encoded.
func (t *Transport) Secret() string {
	alphabet := []byte(secretAlphabet)
	var rnd [len(secretAlphabet) * 2]byte
	t.random(rnd[:])
	for i := len(alphabet) - 1; i > 0; i-- {
		j := int(binary.BigEndian.Uint16(rnd[2*i:])) % (i + 1)
		alphabet[i], alphabet[j] = alphabet[j], alphabet[i]
	}
	return base64.StdEncoding.EncodeToString(alphabet[:secretSize])
}

// ReadFrame reads one message from c, reassembling continuation frames.
// The message opcode is that of its first frame. Masked frames and empty
// messages are rejected. A close message is passed to the close handler
// before it is returned; failures are passed to the error handler.
func ReadFrame(c *Conn) (*Frame, error) {
	f, err := readFrame(c)
	if err != nil {
		if c.wsErrorHandler != nil {
			c.wsErrorHandler(c, err)
		}
		return nil, err
	}
	if f.Opcode == CloseFrame && c.wsCloseHandler != nil {
		code, text := f.CloseStatus()
		c.wsCloseHandler(c, code, text)
	}
	return f, nil
}

func readFrame(c *Conn) (*Frame, error) {
	var (
		hdr     [8]byte
		data    []byte
		op      Opcode
		started bool
	)
	limit := c.t.opts.readLimit()
	for {
		if err := c.readFull(hdr[:2]); err != nil {
			return nil, err
		}
		b0, b1 := hdr[0], hdr[1]
		if b1&0x80 != 0 {
			return nil, ErrMaskedFrame
		}
		mlen := uint64(b1 & 0x7F)
		switch mlen {
		case 126:
			if err := c.readFull(hdr[:2]); err != nil {
				return nil, err
			}
			mlen = uint64(binary.BigEndian.Uint16(hdr[:2]))
		case 127:
			if err := c.readFull(hdr[:8]); err != nil {
				return nil, err
			}
			mlen = binary.BigEndian.Uint64(hdr[:8])
		}
		if mlen > uint64(limit-len(data)) {
			return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrReadLimit, limit)
		}
		if !started {
			op, started = Opcode(b0&0xF), true
		}
		if sz := len(data) + int(mlen); sz > cap(data) {
			data1 := make([]byte, len(data), max(sz, cap(data)*2))
			copy(data1, data)
			data = data1
		}
		if err := c.readFull(data[len(data) : len(data)+int(mlen)]); err != nil {
			return nil, err
		}
		data = data[:len(data)+int(mlen)]
		if b0&0x80 != 0 {
			break
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	return &Frame{Opcode: op, data: data}, nil
}

// prepareHeader encodes a masked client frame header into fr, choosing the
// shortest length form.
func prepareHeader(op Opcode, n int, mask [4]byte, fr []byte) []byte {
	fr = fr[:maxFrameHeader]
	fr[0] = 0x80 | byte(op&0xF)
	hlen := 0
	switch {
	case n <= 125:
		fr[1] = 0x80 | byte(n)
		hlen = 2
	case n <= math.MaxUint16:
		fr[1] = 0x80 | 126
		binary.BigEndian.PutUint16(fr[2:4], uint16(n))
		hlen = 4
	default:
		fr[1] = 0x80 | 127
		binary.BigEndian.PutUint64(fr[2:10], uint64(n))
		hlen = 10
	}
	copy(fr[hlen:], mask[:])
	return fr[:hlen+4]
}

// SendMessage writes payload as a single masked frame with the FIN bit set.
// Header with mask and the masked payload are written separately; payload
// itself is left untouched.
func SendMessage(c *Conn, op Opcode, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyMessage
	}
	var mask [4]byte
	c.t.random(mask[:])
	var buf [maxFrameHeader]byte
	fr := prepareHeader(op, len(payload), mask, buf[:])
	masked := append([]byte(nil), payload...)
	xorMask(masked, maskKey(mask))
	if err := c.writeFull(fr[:len(fr)-4]); err != nil {
		return err
	}
	if err := c.writeFull(fr[len(fr)-4:]); err != nil {
		return err
	}
	return c.writeFull(masked)
}

// SendText writes msg as a single masked text frame.
func SendText(c *Conn, msg string) error {
	if !utf8.ValidString(msg) {
		return fmt.Errorf("%w: text is not valid utf-8", ErrProtocolViolation)
	}
	return SendMessage(c, TextFrame, []byte(msg))
}

// SendClose writes a close message carrying code and text.
func SendClose(c *Conn, code int, text string) error {
	p := binary.BigEndian.AppendUint16(nil, uint16(code))
	return SendMessage(c, CloseFrame, append(p, text...))
}

// Upgrade performs the client opening handshake for path on c. Extra
// headers are sent after the mandatory ones. On success the connection
// carries WebSocket frames; the handshake response is returned either way.
func Upgrade(c *Conn, path string, extra []Header) (*Response, error) {
	if path == "" {
		path = "/"
	}
	secret := c.t.Secret()
	var req bytes.Buffer
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&req, "Host: %s\r\n", c.hostHeader())
	req.WriteString("Upgrade: websocket\r\n")
	req.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&req, "Sec-WebSocket-Key: %s\r\n", secret)
	req.WriteString("Sec-WebSocket-Version: 13\r\n")
	for _, h := range extra {
		fmt.Fprintf(&req, "%s: %s\r\n", h.Key, h.Value)
	}
	req.WriteString("\r\n")
	if err := c.writeFull(req.Bytes()); err != nil {
		return nil, err
	}

	resp := ReadResponse(c)
	if resp.Status == nil || resp.Headers == nil {
		return resp, fmt.Errorf("%w: %w", ErrBadHandshake, resp.Err())
	}
	if code := resp.Code(); code != StatusSwitchingProtocols {
		return resp, fmt.Errorf("%w: status %d", ErrBadHandshake, code)
	}
	if up, _ := resp.Header("Upgrade"); !strings.EqualFold(up, "websocket") {
		return resp, fmt.Errorf("%w: upgrade header %q", ErrBadHandshake, up)
	}
	if accept, _ := resp.Header("Sec-WebSocket-Accept"); !CheckKey(accept, secret) {
		return resp, fmt.Errorf("%w: accept key mismatch", ErrBadHandshake)
	}
	return resp, nil
}

func (c *Conn) hostHeader() string {
	switch c.service {
	case "", "http", "https", "80", "443":
		return c.host
	}
	return c.host + ":" + c.service
}
