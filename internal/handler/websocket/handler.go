package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/hub"
	"github.com/Matthew0wolf/Apront/internal/middleware"
)

// upgrader 把 HTTP 连接升级为 WebSocket。
// 跨域控制交给网关层，这里不做 Origin 校验。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 处理 WebSocket 连接的建立
type Handler struct {
	hub *hub.Hub
}

// NewHandler 创建 WebSocket Handler 实例
func NewHandler(h *hub.Hub) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	return &Handler{hub: h}
}

// Serve 处理 GET /ws：升级连接、注册客户端并启动读写泵。
// 身份来自认证中间件；房间的加入由客户端连接后通过控制消息发起。
func (h *Handler) Serve(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		logrus.Error("WebSocket handler: actor not found in context, auth middleware missing?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时 gorilla 已经写了响应
		logrus.WithFields(logrus.Fields{
			"user_id": actor.ID,
		}).WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, conn, actor)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logrus.WithField("user_id", actor.ID).Error("Hub queue full, rejecting new websocket connection")
		conn.Close()
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    actor.ID,
		"company_id": actor.CompanyID,
		"session_id": client.SessionID(),
	}).Info("WebSocket client connected")
	client.Run()
}
