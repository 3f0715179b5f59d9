package httpio_test

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonfxr/httpio"
)

func readResponse(t *testing.T, chunks ...string) *httpio.Response {
	c, snc := pair(t, httpio.Options{})
	done := feed(snc, chunks...)
	resp := httpio.ReadResponse(c)
	require.NoError(t, <-done)
	require.NotNil(t, resp)
	return resp
}

func TestChunkedBody(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nContent-Type: text/plain\r\n\r\n",
		"4\r\nWiki\r\n",
		"5\r\npedia\r\n",
		"0\r\n\r\n")
	a.NoError(resp.Err())
	a.Equal(httpio.StatusOK, resp.Code())
	a.Equal("Wikipedia", resp.Body.String())
	a.Equal(9, resp.Body.Len())
	a.True(resp.Body.Terminated())
}

func TestChunkedExtensionsAndTrailers(t *testing.T) {
	a := assert.New(t)
	c, snc := pair(t, httpio.Options{})
	done := feed(snc,
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: Chunked\r\nContent-Type: application/octet-stream\r\n\r\n",
		"a;name=value\r\n0123456789\r\n",
		"0\r\nExpires: never\r\nX-Checksum: 1\r\n\r\n",
		"HTTP/1.1 204 No Content\r\n\r\n")

	resp := httpio.ReadResponse(c)
	a.NoError(resp.Err())
	a.Equal([]byte("0123456789"), resp.Body.Bytes())
	a.False(resp.Body.Terminated())

	// the trailers are gone, the next response starts cleanly
	next := httpio.ReadResponse(c)
	a.NoError(next.Err())
	a.Equal(204, next.Code())
	a.Nil(next.Body)
	a.NoError(<-done)
}

func TestChunkSizeTooLong(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n",
		"1234567890abcdef0\r\n")
	a.NotNil(resp.Status)
	a.NotNil(resp.Headers)
	a.Nil(resp.Body)
	a.ErrorIs(resp.Err(), httpio.ErrProtocol)
}

func TestContentLengthPartialReads(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n",
		"He", "l", "lo")
	a.NoError(resp.Err())
	a.Equal("Hello", resp.Body.String())
	a.Equal(5, resp.Body.Len())
	a.True(resp.Body.Terminated())
}

func TestTransferEncodingOverridesContentLength(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: identity\r\nContent-Length: 5\r\n\r\nHello")
	a.NoError(resp.Err())
	a.Nil(resp.Body)
}

func TestNonNumericContentLength(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.1 200 OK\r\nContent-Length: five\r\n\r\nHello")
	a.NoError(resp.Err())
	a.Nil(resp.Body)
}

func gzipped(t *testing.T, s string) string {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.String()
}

func TestGzipBody(t *testing.T) {
	a := assert.New(t)
	doc := `{"name":"httpio","tags":["http","websocket","socks5"],"size":` + strings.Repeat("1", 40000) + `}`
	z := gzipped(t, doc)
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Encoding: gzip\r\nContent-Length: "+strconv.Itoa(len(z))+"\r\n\r\n",
		z[:len(z)/2], z[len(z)/2:])
	a.NoError(resp.Err())
	a.Equal(doc, resp.Body.String())
	a.True(resp.Body.Terminated())
}

func TestGzipChunked(t *testing.T) {
	a := assert.New(t)
	z := gzipped(t, "<html>hi</html>")
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Encoding: gzip\r\nTransfer-Encoding: chunked\r\n\r\n",
		strconv.FormatInt(int64(len(z)), 16)+"\r\n"+z+"\r\n0\r\n\r\n")
	a.NoError(resp.Err())
	a.Equal("<html>hi</html>", resp.Body.String())
}

func TestZlibBody(t *testing.T) {
	a := assert.New(t)
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte("deflated text"))
	zw.Close()
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nContent-Encoding: x-gzip\r\nContent-Length: "+strconv.Itoa(buf.Len())+"\r\n\r\n",
		buf.String())
	a.NoError(resp.Err())
	a.Equal("deflated text", resp.Body.String())
}

func TestCorruptGzipBody(t *testing.T) {
	a := assert.New(t)
	tr, logs := observedTransport(t, httpio.Options{})
	c, snc := pairWith(t, tr)
	done := feed(snc, "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: 6\r\n\r\ngarbag")

	resp := httpio.ReadResponse(c)
	a.NoError(<-done)
	a.Equal(200, resp.Code())
	a.NotNil(resp.Headers)
	a.Nil(resp.Body)
	a.ErrorIs(resp.Err(), httpio.ErrDecompress)
	a.Equal(1, logs.FilterMessage("discarding body").Len())
}

func TestContentEncodingIsCaseSensitive(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.1 200 OK\r\nContent-Encoding: GZIP\r\nContent-Length: 4\r\n\r\nraw!")
	a.NoError(resp.Err())
	a.Equal("raw!", resp.Body.String())
}

func TestHeaderLookup(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\n"+
			"Content-Type: text/plain\r\n"+
			"X-Multi: one\r\n"+
			"Server:   spaced   \r\n"+
			"x-multi: two\r\n"+
			"no colon here\r\n"+
			"Location: http://example.com:8080/\r\n"+
			"\r\n")
	a.NoError(resp.Err())
	a.Nil(resp.Body)

	v, ok := resp.Header("content-type")
	a.True(ok)
	a.Equal("text/plain", v)
	v, ok = resp.Headers.Get("SERVER")
	a.True(ok)
	a.Equal("spaced", v)
	v, _ = resp.Headers.Get("location")
	a.Equal("http://example.com:8080/", v)
	_, ok = resp.Headers.Get("missing")
	a.False(ok)

	a.Equal([]string{"one", "two"}, resp.Headers.Values("X-MULTI"))
	a.Equal(5, resp.Headers.Len())
	for i := 1; i < resp.Headers.Len(); i++ {
		a.LessOrEqual(strings.ToLower(resp.Headers.At(i-1).Key), strings.ToLower(resp.Headers.At(i).Key))
	}
}

func TestEmptyHeaderBlock(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.1 204 No Content\r\n\r\n")
	a.NoError(resp.Err())
	a.Equal(0, resp.Headers.Len())
	a.Nil(resp.Body)
}

func TestUpdateCookie(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t,
		"HTTP/1.1 200 OK\r\nSet-Cookie: a=1; Path=/\r\nContent-Length: 0\r\nset-cookie: b=2\r\n\r\n")
	a.NoError(resp.Err())
	a.Equal("a=1; b=2", resp.Headers.UpdateCookie(""))
	a.Equal("z=0; a=1; b=2", resp.Headers.UpdateCookie("z=0"))
}

func TestStatusLine(t *testing.T) {
	for _, tc := range []struct {
		line   string
		proto  string
		code   int
		reason string
	}{
		{"HTTP/1.1 200 OK", "HTTP/1.1", 200, "OK"},
		{"HTTP/1.1 404 Not Found", "HTTP/1.1", httpio.StatusNotFound, "Not Found"},
		{"HTTP/1.0 503 Service Temporarily Unavailable", "HTTP/1.0", 503, "Service Temporarily Unavailable"},
		{"HTTP/1.1 2x0 OK", "HTTP/1.1", httpio.InvalidCode, "OK"},
		{"HTTP/1.1 abc", "HTTP/1.1", httpio.InvalidCode, ""},
	} {
		t.Run(tc.line, func(t *testing.T) {
			a := assert.New(t)
			resp := readResponse(t, tc.line+"\r\n\r\n")
			a.NoError(resp.Err())
			if a.NotNil(resp.Status) {
				a.Equal(tc.proto, resp.Status.Proto)
				a.Equal(tc.code, resp.Status.Code)
				a.Equal(tc.reason, resp.Status.Reason)
			}
		})
	}
}

func TestBareLineFeed(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.0 200 OK\nContent-Length: 2\r\n\r\nhi")
	a.NoError(resp.Err())
	a.Equal(200, resp.Code())
	a.Equal("hi", resp.Body.String())
}

func TestDoubleCarriageReturn(t *testing.T) {
	a := assert.New(t)
	c, snc := pair(t, httpio.Options{ReadTimeout: time.Second})
	<-feed(snc, "HTTP/1.1 200 OK\r\r\n")
	snc.Close()
	resp := httpio.ReadResponse(c)
	a.Nil(resp.Status)
	a.Nil(resp.Headers)
	a.Nil(resp.Body)
	a.Equal(httpio.InvalidCode, resp.Code())
	a.ErrorIs(resp.Err(), httpio.ErrProtocol)
	a.ErrorIs(resp.Err(), httpio.ErrClosed)
}

func TestPeerClosedBeforeResponse(t *testing.T) {
	a := assert.New(t)
	c, snc := pair(t, httpio.Options{ReadTimeout: time.Second})
	snc.Close()
	resp := httpio.ReadResponse(c)
	a.NotNil(resp)
	a.Nil(resp.Status)
	a.Nil(resp.Headers)
	a.ErrorIs(resp.Err(), httpio.ErrClosed)
}

func TestTruncatedBody(t *testing.T) {
	a := assert.New(t)
	c, snc := pair(t, httpio.Options{ReadTimeout: time.Second})
	<-feed(snc, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort")
	snc.Close()
	resp := httpio.ReadResponse(c)
	a.NotNil(resp.Status)
	a.NotNil(resp.Headers)
	a.Nil(resp.Body)
	a.ErrorIs(resp.Err(), httpio.ErrClosed)
}

func TestBodyTake(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nabc")
	a.Equal([]byte("abc"), resp.Body.Take())
	a.Equal(0, resp.Body.Len())
	a.Nil(resp.Body.Take())
}

func TestContentLengthOverLimit(t *testing.T) {
	a := assert.New(t)
	resp := readResponse(t, "HTTP/1.1 200 OK\r\nContent-Length: 999999999999999999\r\n\r\nabc")
	a.Equal(200, resp.Code())
	a.NotNil(resp.Headers)
	a.Nil(resp.Body)
	a.ErrorIs(resp.Err(), httpio.ErrReadLimit)
}

func TestBodyLimit(t *testing.T) {
	for _, tc := range []struct {
		name   string
		chunks []string
	}{
		{"content-length", []string{"HTTP/1.1 200 OK\r\nContent-Length: 17\r\n\r\n", "0123456789abcdefg"}},
		{"chunked", []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n", "a\r\n0123456789\r\n", "7\r\nabcdefg\r\n0\r\n\r\n"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			c, snc := pair(t, httpio.Options{BodyLimit: 16})
			done := feed(snc, tc.chunks...)
			resp := httpio.ReadResponse(c)
			a.NoError(<-done)
			a.NotNil(resp.Headers)
			a.Nil(resp.Body)
			a.ErrorIs(resp.Err(), httpio.ErrReadLimit)
		})
	}
}

func TestInflatedBodyLimit(t *testing.T) {
	a := assert.New(t)
	z := gzipped(t, strings.Repeat("x", 4096))
	c, snc := pair(t, httpio.Options{BodyLimit: 1024})
	done := feed(snc, "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: "+strconv.Itoa(len(z))+"\r\n\r\n"+z)
	resp := httpio.ReadResponse(c)
	a.NoError(<-done)
	a.Nil(resp.Body)
	a.ErrorIs(resp.Err(), httpio.ErrReadLimit)
}
