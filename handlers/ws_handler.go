package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gameqc/logger"
	"gameqc/middleware"
	"gameqc/services"
)

// WSHandler upgrades console and runtime harness connections.
type WSHandler struct {
	hub      *services.Hub
	bridge   *services.RuntimeBridge
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewWSHandler(hub *services.Hub, bridge *services.RuntimeBridge, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		hub:    hub,
		bridge: bridge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Connections are token-authenticated.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.With("handler", "WSHandler"),
	}
}

// Console streams version_transition and qa_run messages, optionally
// filtered to one game with ?game_id=.
func (h *WSHandler) Console(c *gin.Context) {
	userID := middleware.UserID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("console upgrade failed", "user_id", userID, "error", err)
		return
	}
	if h.hub.RegisterClient(conn, userID, c.Query("game_id")) == nil {
		h.log.Warn("console hub stopped, connection dropped", "user_id", userID)
	}
}

func (h *WSHandler) Runtime(c *gin.Context) {
	harnessID := c.Param("harnessId")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("runtime harness upgrade failed", "harness_id", harnessID, "error", err)
		return
	}
	h.bridge.Attach(harnessID, conn)
}
