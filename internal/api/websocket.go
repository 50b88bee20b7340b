package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"perp-gateway/internal/events"
)

const wsWriteWait = 10 * time.Second

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.opts.CORSOrigins) == 0 {
				return true
			}
			for _, o := range s.opts.CORSOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// websocket streams the authenticated wallet's order events.
func (s *Server) websocket(c *gin.Context) {
	wallet := CurrentWallet(c)
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.Subscribe(events.EventAny, 100)
	defer unsub()

	// Reader drains control frames and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := s.Log.WithField("wallet", wallet)
	log.Debug("ws subscriber connected")
	for {
		select {
		case <-closed:
			log.Debug("ws subscriber disconnected")
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if msg.Wallet != wallet {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Warn("ws write failed")
				return
			}
		}
	}
}
