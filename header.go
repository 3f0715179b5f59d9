package httpio

import (
	"sort"
	"strings"
)

// Header is a single response header field.
type Header struct {
	Key   string
	Value string
}

// HeaderList holds response headers ordered by case-insensitive key.
// Repeated keys are kept in wire order.
type HeaderList struct {
	h []Header
}

// compareFold orders strings like strcasecmp over ASCII letters.
func compareFold(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ca, cb := lower(a[i]), lower(b[i])
		if ca != cb {
			return int(ca) - int(cb)
		}
	}
	return len(a) - len(b)
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// NewHeaderList builds a sorted list from headers in wire order.
func NewHeaderList(headers []Header) *HeaderList {
	l := &HeaderList{h: append([]Header(nil), headers...)}
	sort.SliceStable(l.h, func(i, j int) bool { return compareFold(l.h[i].Key, l.h[j].Key) < 0 })
	return l
}

// parseHeaders splits a raw header block into fields. Lines without a
// colon are skipped.
func parseHeaders(block string) *HeaderList {
	var hs []Header
	for len(block) > 0 {
		line := block
		if i := strings.IndexByte(block, '\n'); i >= 0 {
			line, block = block[:i], block[i+1:]
		} else {
			block = ""
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		hs = append(hs, Header{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)})
	}
	return NewHeaderList(hs)
}

func (l *HeaderList) search(key string) int {
	return sort.Search(len(l.h), func(i int) bool { return compareFold(l.h[i].Key, key) >= 0 })
}

// Get returns the value of the first header matching key case-insensitively
// in key order, and whether one was found.
func (l *HeaderList) Get(key string) (string, bool) {
	if l == nil {
		return "", false
	}
	if i := l.search(key); i < len(l.h) && compareFold(l.h[i].Key, key) == 0 {
		return l.h[i].Value, true
	}
	return "", false
}

// Values returns every value stored under key, in wire order.
func (l *HeaderList) Values(key string) []string {
	if l == nil {
		return nil
	}
	var vs []string
	for i := l.search(key); i < len(l.h) && compareFold(l.h[i].Key, key) == 0; i++ {
		vs = append(vs, l.h[i].Value)
	}
	return vs
}

// Len returns the number of header fields.
func (l *HeaderList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.h)
}

// At returns the i-th header in key order.
func (l *HeaderList) At(i int) Header { return l.h[i] }

// UpdateCookie appends the name=value part of every Set-Cookie header to
// cookie, separated by "; ", and returns the result.
func (l *HeaderList) UpdateCookie(cookie string) string {
	if l == nil {
		return cookie
	}
	var sb strings.Builder
	sb.WriteString(cookie)
	for _, h := range l.h {
		if !strings.EqualFold(h.Key, "set-cookie") {
			continue
		}
		v, _, _ := strings.Cut(h.Value, ";")
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(v)
	}
	return sb.String()
}
