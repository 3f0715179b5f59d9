//go:build !unix

package httpio

import (
	"net"
	"time"
)

// Without poll(2) readiness is reported immediately and the subsequent I/O
// is bounded by a deadline.

func pollRead(net.Conn, time.Duration) bool { return true }

func pollWrite(net.Conn, time.Duration) bool { return true }
