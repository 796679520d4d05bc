package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketUpgrade rejects non-upgrade requests and records the client IP for
// the session.
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("ip", c.IP())
		return c.Next()
	}
}

// WebSocketHandler runs one discovery session per connection.
// Clients send {"action": ...} messages and receive {"type": ...} messages.
func WebSocketHandler(hub *SessionHub, cfg SessionConfig) func(*websocket.Conn) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return func(c *websocket.Conn) {
		defer c.Close()

		var mu sync.Mutex
		writeJSON := func(m ServerMessage) error {
			data, err := json.Marshal(m)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
			return c.WriteMessage(websocket.TextMessage, data)
		}

		ip, _ := c.Locals("ip").(string)
		session := NewSession(uuid.NewString(), writeJSON, ip, cfg)
		log.Info("ws session opened", "session_id", session.ID, "ip", ip)

		hub.Add(session)
		defer hub.Remove(session.ID)
		defer session.Close()

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		session.Start()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			session.HandleMessage(msg)
		}

		log.Info("ws session closed", "session_id", session.ID)
	}
}
