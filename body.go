package httpio

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Body is a response body. Textual bodies are followed by a NUL byte that
// is not counted in Len.
type Body struct {
	data []byte
	nul  bool
}

// Bytes returns the body content.
func (b *Body) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the length of the body content.
func (b *Body) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// String returns the body content as a string.
func (b *Body) String() string { return string(b.Bytes()) }

// Terminated reports whether a NUL byte follows the content.
func (b *Body) Terminated() bool {
	return b != nil && b.nul
}

// Take transfers the content to the caller and empties the body.
func (b *Body) Take() []byte {
	if b == nil {
		return nil
	}
	d := b.data
	b.data, b.nul = nil, false
	return d
}

type content struct {
	typ      string
	hasType  bool
	encoding string
}

func (c content) isText() bool {
	if !c.hasType {
		return true
	}
	for _, s := range [...]string{"text", "html", "xml", "json"} {
		if strings.Contains(c.typ, s) {
			return true
		}
	}
	return false
}

// contentLength parses a Content-Length value, non numeric values count as 0.
func contentLength(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// readBody decides the body framing from the headers and reads it. A nil
// body and nil error mean the response has no framed body.
func readBody(c *Conn, hl *HeaderList) (*Body, error) {
	te, hasTE := hl.Get("transfer-encoding")
	length := int64(-1)
	if !hasTE {
		if v, ok := hl.Get("content-length"); ok {
			length = contentLength(v)
		}
	}
	var ct content
	ct.typ, ct.hasType = hl.Get("content-type")
	ct.encoding, _ = hl.Get("content-encoding")

	limit := c.t.opts.bodyLimit()
	var data []byte
	var err error
	switch {
	case length > 0:
		data, err = readContentLength(c, length, limit)
	case hasTE && strings.EqualFold(te, "chunked"):
		data, err = readChunked(c, limit)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return newBody(c, ct, data, limit)
}

func newBody(c *Conn, ct content, data []byte, limit int64) (*Body, error) {
	if strings.Contains(ct.encoding, "gzip") {
		inflated, err := inflate(data, limit)
		if err != nil {
			c.logger().Warn("discarding body", zap.String("encoding", ct.encoding), zap.Error(err))
			return nil, err
		}
		data = inflated
	}
	b := &Body{data: data}
	if ct.isText() {
		if cap(data) == len(data) {
			b.data = append(data, 0)[:len(data)]
		} else {
			data[:len(data)+1][len(data)] = 0
		}
		b.nul = true
	}
	return b, nil
}

func readContentLength(c *Conn, n, limit int64) ([]byte, error) {
	if n > limit {
		return nil, fmt.Errorf("%w: content length %d exceeds %d bytes", ErrReadLimit, n, limit)
	}
	data := make([]byte, n, n+1)
	if err := c.readFull(data); err != nil {
		return nil, err
	}
	return data, nil
}

// chunkLength reads a chunk-size line: hex digits, an optional extension
// after ';' and CRLF.
func chunkLength(c *Conn) (int64, error) {
	var digits [MaxChunkSizeDigits]byte
	n, ext := 0, false
	for {
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		switch {
		case b == '\r':
			if b, err = c.readByte(); err != nil {
				return 0, err
			}
			if b != '\n' {
				return 0, fmt.Errorf("%w: chunk size line not terminated by CRLF", ErrProtocol)
			}
			s := strings.TrimRight(string(digits[:n]), " \t")
			v, err := strconv.ParseInt(s, 16, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: chunk size %q", ErrProtocol, s)
			}
			return v, nil
		case ext:
		case b == ';':
			ext = true
		case n == len(digits):
			return 0, fmt.Errorf("%w: chunk size exceeds %d digits", ErrProtocol, MaxChunkSizeDigits)
		default:
			digits[n] = b
			n++
		}
	}
}

func readChunked(c *Conn, limit int64) ([]byte, error) {
	var out bytes.Buffer
	chunk := make([]byte, streamChunkSize)
	for {
		expect, err := chunkLength(c)
		if err != nil {
			return nil, err
		}
		if expect == 0 {
			break
		}
		if expect > limit-int64(out.Len()) {
			return nil, fmt.Errorf("%w: chunked body exceeds %d bytes", ErrReadLimit, limit)
		}
		for expect > 0 {
			n, err := c.Read(chunk[:min(expect, int64(len(chunk)))], c.readTimeout)
			if err != nil {
				return nil, err
			}
			out.Write(chunk[:n])
			expect -= int64(n)
		}
		// chunk terminator
		if err := c.readFull(chunk[:2]); err != nil {
			return nil, err
		}
	}
	// trailer fields are consumed and dropped
	for {
		line, err := readLine(c)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
	}
	out.Grow(1)
	return out.Bytes(), nil
}

// inflate decompresses gzip or zlib data, detected by its header, in
// fixed-size output steps. Output beyond limit is an error.
func inflate(data []byte, limit int64) ([]byte, error) {
	var zr io.ReadCloser
	var err error
	if len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B {
		zr, err = gzip.NewReader(bytes.NewReader(data))
	} else {
		zr, err = zlib.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	defer zr.Close()
	var out bytes.Buffer
	n, err := io.CopyBuffer(&out, io.LimitReader(zr, limit+1), make([]byte, streamChunkSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: inflated body exceeds %d bytes", ErrReadLimit, limit)
	}
	return out.Bytes(), nil
}
