package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/tablemates/backend/internal/middleware"
)

// wsRoutes mounts the notification socket. Browsers cannot set headers on a
// websocket upgrade, so auth runs on the token query parameter.
func (s *Server) wsRoutes() {
	s.app.Use("/ws", middleware.RequireAuth(s.jwt), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws", websocket.New(s.handleSocket))
}

// handleSocket registers the connection with the hub and blocks on the read
// loop until the client disconnects. Inbound frames are discarded; the
// socket is push-only.
func (s *Server) handleSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.UserIDKey).(string)
	if userID == "" {
		conn.Close()
		return
	}

	s.hub.Register(userID, conn)
	s.logger.Info("Websocket connected", "user_id", userID)

	defer func() {
		s.hub.Unregister(userID, conn)
		conn.Close()
		s.logger.Info("Websocket disconnected", "user_id", userID)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
