package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const maxWSMessageSize = 512

// handleWS upgrades an authenticated client to a notification connection.
// The token travels as a query parameter because browsers cannot set headers
// on a websocket handshake. The connection is receive-only from the client's
// point of view; inbound frames are drained and discarded.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeErrorMessage(w, http.StatusUnauthorized, "token required")
		return
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}
	userID := claims.Subject

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	s.hub.Connect(userID, conn)
	if err := s.presence.MarkOnline(r.Context(), userID); err != nil {
		s.logger.Warn("presence mark online failed", "user_id", userID, "error", err)
	}
	s.logger.Info("notification connection opened", "user_id", userID)

	defer func() {
		s.hub.Disconnect(userID, conn)
		// request context may be gone by now; presence cleanup gets its own
		if err := s.presence.MarkOffline(context.Background(), userID); err != nil {
			s.logger.Warn("presence mark offline failed", "user_id", userID, "error", err)
		}
		_ = conn.Close()
		s.logger.Info("notification connection closed", "user_id", userID)
	}()

	conn.SetReadLimit(maxWSMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
