package gittree

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/coordplane/coordplane/internal/wsreg"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and fans out tree-refreshed and
// webhook-push events until the socket closes.
func (in *Instance) ServeWS(w http.ResponseWriter, r *http.Request, tag string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := in.sockets.Add(tag, conn)
	defer in.sockets.Remove(c)

	wsreg.ReadLoop(conn, func(data []byte) {})
}
