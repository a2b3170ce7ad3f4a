package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/dto"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// reorder 中继消息携带完整的排序数组，需要比纯控制消息大的上限。
	maxMessageSize = 4096
)

// RoomAuthorizer 决定客户端能否加入某个 Rundown 房间。
// 由 service 层的成员关系逻辑实现，Hub 本身不碰数据库。
type RoomAuthorizer interface {
	CanJoinRundown(ctx context.Context, actor domain.Actor, rundownID uint) bool
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "control"
	Client  *Client // 消息关联的客户端
	RawData []byte  // 仅用于 control（原始 WebSocket 消息）
}

// Hub 维护活跃客户端集合和房间成员关系，并负责消息扇出。
// 注册、注销和控制消息全部经由单一 messageChan 串行进入，
// 房间 map 的并发读（广播）通过读写锁保护。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 房间 -> 客户端集合。房间按需创建，清空即回收。
	rooms map[Room]map[*Client]bool
	// 客户端 -> 已加入的房间集合（断开时反向清理用）
	clientRooms map[*Client]map[Room]bool
	// 保护 rooms / clientRooms 两个 map 的读写锁
	roomsMu sync.RWMutex

	authorizer RoomAuthorizer

	stopOnce sync.Once
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(authorizer RoomAuthorizer) *Hub {
	if authorizer == nil {
		panic("RoomAuthorizer cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[Room]map[*Client]bool),
		clientRooms: make(map[*Client]map[Room]bool),
		authorizer:  authorizer,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "control":
			// join_rundown 的授权检查可能打数据库，异步处理避免阻塞主循环
			go h.handleControl(msg)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// Stop 关闭 Hub 的消息通道，使 Run 退出。幂等。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.messageChan)
	})
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 true 表示消息成功入队，false 表示队列已满被丢弃。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// registerClient 记录新客户端并让其自动加入所属公司的列表房间。
// 公司 ID 来自认证后的 Actor，不信任客户端声明。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": client.sessionID,
		"user_id":    client.actor.ID,
		"company_id": client.actor.CompanyID,
		"action":     "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.clientRooms[client]; !ok {
		h.clientRooms[client] = make(map[Room]bool)
	}
	h.joinRoomLocked(client, CompanyRoom(client.actor.CompanyID))
	h.roomsMu.Unlock()

	logCtx.Info("Client registered to Hub")
}

// unregisterClient 将客户端从其加入的所有房间移除并关闭发送通道
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": client.sessionID,
		"user_id":    client.actor.ID,
		"action":     "unregisterClient",
	})

	h.roomsMu.Lock()
	joined, exists := h.clientRooms[client]
	if exists {
		for room := range joined {
			h.leaveRoomLocked(client, room)
		}
		delete(h.clientRooms, client)

		// 关闭 send 通道让 WritePump 退出；防止重复关闭 panic
		select {
		case <-client.send:
			logCtx.Warn("Client send channel already closed or has data during unregister")
		default:
			close(client.send)
		}
	}
	h.roomsMu.Unlock()

	if exists {
		logCtx.Info("Client unregistered from Hub")
	} else {
		logCtx.Warn("Client not found during unregister")
	}
}

// joinRoomLocked 把客户端加入房间，房间不存在则创建。调用方必须持有写锁。
func (h *Hub) joinRoomLocked(client *Client, room Room) {
	clients, ok := h.rooms[room]
	if !ok {
		clients = make(map[*Client]bool)
		h.rooms[room] = clients
	}
	clients[client] = true
	if h.clientRooms[client] == nil {
		h.clientRooms[client] = make(map[Room]bool)
	}
	h.clientRooms[client][room] = true
}

// leaveRoomLocked 把客户端移出房间，房间清空则回收。调用方必须持有写锁。
func (h *Hub) leaveRoomLocked(client *Client, room Room) {
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.clientRooms[client]; ok {
		delete(joined, room)
	}
}

// inRoom 判断客户端当前是否在指定房间内
func (h *Hub) inRoom(client *Client, room Room) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.clientRooms[client][room]
}

// handleControl 处理客户端发来的控制 / 中继消息
func (h *Hub) handleControl(msg HubMessage) {
	client := msg.Client
	if client == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": client.sessionID,
		"user_id":    client.actor.ID,
		"operation":  "handleControl",
	})

	var control dto.ControlMessage
	if err := json.Unmarshal(msg.RawData, &control); err != nil {
		logCtx.WithError(err).Warn("Discarding unparseable control message")
		return
	}
	logCtx = logCtx.WithField("control_type", control.Type)

	switch control.Type {
	case dto.ControlJoinRundown:
		if control.RundownID == 0 {
			logCtx.Warn("join_rundown without rundown_id")
			return
		}
		// 房间加入走成员关系授权：非成员（且非本公司管理员）拿不到广播
		if !h.authorizer.CanJoinRundown(context.Background(), client.actor, control.RundownID) {
			logCtx.WithField("rundown_id", control.RundownID).Warn("Rejected unauthorized join_rundown")
			return
		}
		h.roomsMu.Lock()
		h.joinRoomLocked(client, RundownRoom(control.RundownID))
		h.roomsMu.Unlock()
		logCtx.WithField("rundown_id", control.RundownID).Info("Client joined rundown room")

	case dto.ControlLeaveRundown:
		h.roomsMu.Lock()
		h.leaveRoomLocked(client, RundownRoom(control.RundownID))
		h.roomsMu.Unlock()
		logCtx.WithField("rundown_id", control.RundownID).Debug("Client left rundown room")

	case dto.ControlJoinCompany:
		// 注册时已自动加入本公司房间；这里只校验客户端没有试图跨公司
		if control.CompanyID != client.actor.CompanyID {
			logCtx.WithField("requested_company_id", control.CompanyID).Warn("Rejected cross-company join_company")
			return
		}
		h.roomsMu.Lock()
		h.joinRoomLocked(client, CompanyRoom(control.CompanyID))
		h.roomsMu.Unlock()

	case dto.ControlItemReordered, dto.ControlFolderReordered:
		h.relayReorder(client, control, logCtx)

	default:
		logCtx.Warn("Unknown control message type")
	}
}

// relayReorder 把拖拽排序事件中继给同房间的其他客户端。
// 发送者自己不接收回显：拖拽方的本地状态已经是最新的。
func (h *Hub) relayReorder(client *Client, control dto.ControlMessage, logCtx *logrus.Entry) {
	room := RundownRoom(control.RundownID)
	if !h.inRoom(client, room) {
		logCtx.WithField("rundown_id", control.RundownID).Warn("Reorder relay from client outside room, dropping")
		return
	}
	event := dto.EventItemReordered
	if control.Type == dto.ControlFolderReordered {
		event = dto.EventFolderReordered
	}
	h.PublishExcept(room, event, dto.ReorderEvent{
		RundownID:   control.RundownID,
		FolderIndex: control.FolderIndex,
		NewOrder:    control.NewOrder,
	}, client)
}

// Publish 向房间内所有客户端（含事件来源本人）广播一个事件
func (h *Hub) Publish(room Room, event string, payload interface{}) {
	h.publish(room, event, payload, nil)
}

// PublishExcept 向房间内除 except 之外的客户端广播一个事件
func (h *Hub) PublishExcept(room Room, event string, payload interface{}, except *Client) {
	h.publish(room, event, payload, except)
}

func (h *Hub) publish(room Room, event string, payload interface{}, except *Client) {
	message, err := json.Marshal(dto.Envelope{Event: event, Data: payload})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room":  room.String(),
			"event": event,
		}).WithError(err).Error("Failed to marshal broadcast envelope")
		return
	}

	h.roomsMu.RLock()
	roomClients, ok := h.rooms[room]
	// 拷贝接收者列表，避免发送期间长时间持有锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != except {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room":            room.String(),
		"event":           event,
		"recipient_count": len(clientsToSend),
	})
	logCtx.Debug("Broadcasting event to room")

	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞整个广播
		select {
		case client.send <- message:
		default:
			logCtx.WithField("receiver_user_id", client.actor.ID).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// ActiveRundownIDs 返回当前有客户端在线的全部 Rundown 房间 ID。
// 供周期性任务（计时器巡检）使用。
func (h *Hub) ActiveRundownIDs() []uint {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	ids := make([]uint, 0, len(h.rooms))
	for room := range h.rooms {
		if room.Kind == RoomKindRundown {
			ids = append(ids, room.ID)
		}
	}
	return ids
}
