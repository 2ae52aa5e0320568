package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/internal/socket"
	"github.com/tuan304201/chat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins when the web client domain is fixed
	},
}

type WebSocketHandler struct {
	authService  service.AuthService
	socketServer *socket.Server
	log          logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, socketServer *socket.Server, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService:  authService,
		socketServer: socketServer,
		log:          log,
	}
}

// Handle authenticates via the token query parameter, since browsers
// cannot set an Authorization header on a websocket upgrade.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	actor, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	h.socketServer.HandleConnection(conn, actor)
}
