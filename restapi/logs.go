package restapi

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/relativeprotocol/peerbridge/log"
)

const logWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// logs streams hub entries as JSON text frames until the client goes away.
func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, newError("log streaming disabled"))
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, newError("websocket upgrade required"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	entries, cancel := s.hub.Subscribe()
	defer cancel()

	// Reading is needed to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(logWriteWait))
			if err := conn.WriteJSON(entry); err != nil {
				log.Debugw("log stream closed", "err", err)
				return
			}
		}
	}
}
