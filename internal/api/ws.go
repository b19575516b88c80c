package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytdlder/ytdlder/internal/log"
)

const wsWriteTimeout = 10 * time.Second

// handleWS upgrades the connection and forwards progress events for one
// correlation id. The subscription ends when the pipeline publishes a
// terminal event, the client disconnects, or a newer subscriber takes over
// the id.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	correlationID := r.URL.Query().Get("correlationId")
	if correlationID == "" {
		writeValidationError(w, "correlationId is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	logger := log.WithComponentFromContext(log.ContextWithCorrelationID(r.Context(), correlationID), "ws")
	logger.Debug().Msg("progress subscriber connected")

	ch := s.hub.Subscribe(correlationID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Ends when the channel closes: either this handler unsubscribes or
		// a replacement subscriber takes the id.
		for ev := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug().Err(err).Msg("progress write failed")
				return
			}
			if ev.Final {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
		}
	}()

	// Read loop: its only job is noticing the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Unsubscribe(correlationID, ch)
	_ = conn.Close()
	<-writerDone
	logger.Debug().Msg("progress subscriber disconnected")
}
