package httpio_test

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"
)

func nhooyrEcho(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(1 << 20)
	ctx := context.Background()
	for {
		mt, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if err := c.Write(ctx, mt, data); err != nil {
			return
		}
	}
}
