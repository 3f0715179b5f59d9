package httpio

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// InvalidCode is the status code reported for a status line whose code is
// not a plain decimal number.
const InvalidCode = -1

// Common status codes.
const (
	StatusSwitchingProtocols = 101
	StatusOK                 = 200
	StatusMovedPermanently   = 301
	StatusFound              = 302
	StatusBadRequest         = 400
	StatusUnauthorized       = 401
	StatusNotFound           = 404
	StatusServiceUnavailable = 503
)

// StatusLine is the first line of a response.
type StatusLine struct {
	Proto  string
	Code   int
	Reason string
}

// Response is a received HTTP response. Each member is nil when the stage
// producing it failed; Err reports why.
type Response struct {
	Status  *StatusLine
	Headers *HeaderList
	Body    *Body

	errs []error
}

// Code returns the status code, or InvalidCode without a status line.
func (r *Response) Code() int {
	if r == nil || r.Status == nil {
		return InvalidCode
	}
	return r.Status.Code
}

// Header returns the value of the header named key.
func (r *Response) Header(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	return r.Headers.Get(key)
}

// Err returns the errors of all failed stages joined, or nil.
func (r *Response) Err() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.errs...)
}

func (r *Response) fail(stage string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", stage, err))
}

// ReadResponse reads one response from c: status line, headers and body.
// It always returns a Response; members whose stage failed are nil.
func ReadResponse(c *Conn) *Response {
	r := &Response{}
	line, err := readLine(c)
	if err != nil {
		r.fail("status line", err)
	} else {
		r.Status = parseStatusLine(line)
	}

	block, err := readHeaderBlock(c)
	if err != nil {
		r.fail("headers", err)
		return r
	}
	r.Headers = parseHeaders(block)

	if r.Body, err = readBody(c, r.Headers); err != nil {
		r.fail("body", err)
	}
	return r
}

// parseStatusLine splits line into protocol, code and reason. The reason
// keeps its inner spaces.
func parseStatusLine(line string) *StatusLine {
	parts := strings.SplitN(line, " ", 3)
	st := &StatusLine{Proto: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		code, err := strconv.Atoi(strings.TrimSuffix(parts[1], "\r"))
		if err != nil {
			code = InvalidCode
		}
		st.Code = code
	}
	if len(parts) > 2 {
		st.Reason = strings.TrimSpace(parts[2])
	}
	return st
}

// readLine reads one line terminated by CRLF or a bare LF. A second CR
// before the LF is an error.
func readLine(c *Conn) (string, error) {
	var buf []byte
	cr := false
	for {
		b, err := c.readByte()
		if err != nil {
			return "", err
		}
		switch {
		case b == '\n':
			return string(buf), nil
		case b == '\r':
			if cr {
				return "", fmt.Errorf("%w: second CR before LF", ErrProtocol)
			}
			cr = true
		default:
			if len(buf) == MaxLineLength {
				return "", fmt.Errorf("%w: line exceeds %d bytes", ErrProtocol, MaxLineLength)
			}
			buf = append(buf, b)
		}
	}
}

var (
	headerEnd  = []byte("\r\n\r\n")
	emptyBlock = []byte("\r\n")
)

// readHeaderBlock accumulates bytes up to and including the blank line
// ending the header section.
func readHeaderBlock(c *Conn) (string, error) {
	var buf []byte
	for {
		b, err := c.readByte()
		if err != nil {
			return "", err
		}
		if len(buf) == MaxHeaderBytes {
			return "", fmt.Errorf("%w: header section exceeds %d bytes", ErrProtocol, MaxHeaderBytes)
		}
		buf = append(buf, b)
		if b != '\n' {
			continue
		}
		if bytes.Equal(buf, emptyBlock) {
			return "", nil
		}
		if bytes.HasSuffix(buf, headerEnd) {
			return string(buf), nil
		}
	}
}
