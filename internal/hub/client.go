package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 一个客户端对应一条连接；同一用户开多个标签页就是多个 Client。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string      // 本次连接的会话 ID，用于日志关联
	actor     domain.Actor // 认证后的操作者身份
	send      chan []byte // 用于向此客户端发送消息的缓冲通道
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, actor domain.Actor) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: uuid.NewString(),
		actor:     actor,
		send:      make(chan []byte, 256),
	}
}

// SessionID 返回本次连接的会话 ID
func (c *Client) SessionID() string {
	return c.sessionID
}

// Actor 返回此连接认证后的操作者身份
func (c *Client) Actor() domain.Actor {
	return c.actor
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行，退出时触发注销。
func (c *Client) ReadPump() {
	defer func() {
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithFields(logrus.Fields{
				"session_id": c.sessionID,
				"user_id":    c.actor.ID,
			}).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithFields(logrus.Fields{
			"session_id": c.sessionID,
			"user_id":    c.actor.ID,
		}).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{
				"session_id": c.sessionID,
				"user_id":    c.actor.ID,
			})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		// 只处理文本消息，控制帧交给 gorilla 内建处理
		if messageType != websocket.TextMessage {
			continue
		}

		controlMsg := HubMessage{
			Type:    "control",
			Client:  c,
			RawData: message,
		}
		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- controlMsg:
		default:
			logrus.WithFields(logrus.Fields{
				"session_id": c.sessionID,
				"user_id":    c.actor.ID,
			}).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行，并负责周期性 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{
			"session_id": c.sessionID,
			"user_id":    c.actor.ID,
		}).Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时），向对端发关闭帧后退出
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{
					"session_id": c.sessionID,
					"user_id":    c.actor.ID,
				}).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(logrus.Fields{
					"session_id": c.sessionID,
					"user_id":    c.actor.ID,
				}).WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
