//go:build unix

package httpio

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func pollRead(nc net.Conn, timeout time.Duration) bool {
	return pollConn(nc, unix.POLLIN, timeout)
}

func pollWrite(nc net.Conn, timeout time.Duration) bool {
	return pollConn(nc, unix.POLLOUT, timeout)
}

// pollConn waits on the descriptor of nc. Connections without a
// descriptor report ready and rely on I/O deadlines instead.
func pollConn(nc net.Conn, events int16, timeout time.Duration) bool {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return true
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return true
	}
	ready := false
	if err := rc.Control(func(fd uintptr) { ready = pollFD(int(fd), events, timeout) }); err != nil {
		// closed descriptor, let the following I/O report it
		return true
	}
	return ready
}

func pollFD(fd int, events int16, timeout time.Duration) bool {
	ms := -1
	if timeout >= 0 {
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	var end time.Time
	if ms > 0 {
		end = time.Now().Add(timeout)
	}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			if ms > 0 {
				ms = max(int(time.Until(end)/time.Millisecond), 0)
			}
			continue
		}
		if err != nil || n == 0 {
			return false
		}
		return fds[0].Revents&(events|unix.POLLHUP|unix.POLLERR) != 0
	}
}
