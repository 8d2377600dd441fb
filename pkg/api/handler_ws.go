package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader accepts the WebSocket handshake for the subscriber hub. Origin
// checking is delegated to serviceAuth's bearer/token check, which already
// ran as route middleware by the time Upgrade is called.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades GET /api/v1/ws/devteam?projectId=... and subscribes
// the connection on pkg/wshub for the lifetime of the socket (spec §6).
// serviceAuth has already rejected unauthenticated requests with 401 before
// the upgrade; a handshake failure after that point closes with 1008.
func (s *Server) wsHandler(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, fail("VALIDATION_ERROR", "projectId query parameter is required"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.hub.Subscribe(projectID, conn)
}
