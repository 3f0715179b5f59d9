package httpio_test

import (
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func gobwasEcho(w http.ResponseWriter, r *http.Request) {
	nc, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer nc.Close()
	for {
		data, op, err := wsutil.ReadClientData(nc)
		if err != nil {
			return
		}
		if err := wsutil.WriteServerMessage(nc, op, data); err != nil {
			return
		}
	}
}

// writeFrames writes raw server frames to the peer end of a connection.
func writeFrames(nc net.Conn, frames ...ws.Frame) error {
	for _, f := range frames {
		if err := ws.WriteFrame(nc, f); err != nil {
			return err
		}
	}
	return nil
}

// readClientFrame reads one masked client frame and returns it unmasked.
func readClientFrame(nc net.Conn) (ws.Frame, error) {
	f, err := ws.ReadFrame(nc)
	if err != nil {
		return f, err
	}
	if f.Header.Masked {
		f.Payload = append([]byte(nil), f.Payload...)
		ws.Cipher(f.Payload, f.Header.Mask, 0)
	}
	return f, nil
}
