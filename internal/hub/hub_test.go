package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/dto"
)

// allowAll 允许任何客户端加入任何 Rundown 房间
type allowAll struct{}

func (allowAll) CanJoinRundown(_ context.Context, _ domain.Actor, _ uint) bool { return true }

// denyAll 拒绝所有 Rundown 房间加入请求
type denyAll struct{}

func (denyAll) CanJoinRundown(_ context.Context, _ domain.Actor, _ uint) bool { return false }

// newTestClient 创建一个不带真实连接的客户端，直接从 send 通道断言收到的消息
func newTestClient(h *Hub, userID, companyID uint) *Client {
	return &Client{
		hub:       h,
		sessionID: "test-session",
		actor:     domain.Actor{ID: userID, CompanyID: companyID, Role: domain.RoleOperator},
		send:      make(chan []byte, 16),
	}
}

func joinRundown(t *testing.T, h *Hub, c *Client, rundownID uint) {
	t.Helper()
	raw, err := json.Marshal(dto.ControlMessage{Type: dto.ControlJoinRundown, RundownID: rundownID})
	require.NoError(t, err)
	h.handleControl(HubMessage{Type: "control", Client: c, RawData: raw})
}

func receivedEvent(t *testing.T, c *Client) (dto.Envelope, bool) {
	t.Helper()
	select {
	case raw := <-c.send:
		var env dto.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env, true
	default:
		return dto.Envelope{}, false
	}
}

func TestRegisterAutoJoinsCompanyRoom(t *testing.T) {
	h := NewHub(allowAll{})
	c := newTestClient(h, 1, 7)
	h.registerClient(c)

	assert.True(t, h.inRoom(c, CompanyRoom(7)))

	h.Publish(CompanyRoom(7), dto.EventRundownListChanged, dto.RundownListChangedEvent{CompanyID: 7, Reason: "created"})
	env, ok := receivedEvent(t, c)
	require.True(t, ok, "client should receive company room broadcast")
	assert.Equal(t, dto.EventRundownListChanged, env.Event)
}

func TestPublishReachesAllRundownRoomMembers(t *testing.T) {
	h := NewHub(allowAll{})
	sender := newTestClient(h, 1, 7)
	other := newTestClient(h, 2, 7)
	h.registerClient(sender)
	h.registerClient(other)
	joinRundown(t, h, sender, 42)
	joinRundown(t, h, other, 42)

	h.Publish(RundownRoom(42), dto.EventRundownUpdated, map[string]interface{}{"id": 42})

	for _, c := range []*Client{sender, other} {
		env, ok := receivedEvent(t, c)
		require.True(t, ok, "all room members receive rundown_updated, sender included")
		assert.Equal(t, dto.EventRundownUpdated, env.Event)
	}
}

func TestReorderRelayExcludesSender(t *testing.T) {
	h := NewHub(allowAll{})
	sender := newTestClient(h, 1, 7)
	other := newTestClient(h, 2, 7)
	outsider := newTestClient(h, 3, 7)
	h.registerClient(sender)
	h.registerClient(other)
	h.registerClient(outsider)
	joinRundown(t, h, sender, 42)
	joinRundown(t, h, other, 42)

	folderIdx := 1
	raw, err := json.Marshal(dto.ControlMessage{
		Type:        dto.ControlItemReordered,
		RundownID:   42,
		FolderIndex: &folderIdx,
		NewOrder:    json.RawMessage(`[3,1,2]`),
	})
	require.NoError(t, err)
	h.handleControl(HubMessage{Type: "control", Client: sender, RawData: raw})

	env, ok := receivedEvent(t, other)
	require.True(t, ok, "other room member receives the relay")
	assert.Equal(t, dto.EventItemReordered, env.Event)

	_, ok = receivedEvent(t, sender)
	assert.False(t, ok, "sender must not receive its own reorder echo")

	_, ok = receivedEvent(t, outsider)
	assert.False(t, ok, "client outside the rundown room receives nothing")
}

func TestReorderFromOutsideRoomIsDropped(t *testing.T) {
	h := NewHub(allowAll{})
	sender := newTestClient(h, 1, 7)
	member := newTestClient(h, 2, 7)
	h.registerClient(sender)
	h.registerClient(member)
	joinRundown(t, h, member, 42)

	raw, err := json.Marshal(dto.ControlMessage{
		Type:      dto.ControlFolderReordered,
		RundownID: 42,
		NewOrder:  json.RawMessage(`[2,1]`),
	})
	require.NoError(t, err)
	h.handleControl(HubMessage{Type: "control", Client: sender, RawData: raw})

	_, ok := receivedEvent(t, member)
	assert.False(t, ok, "relay from a client outside the room must be dropped")
}

func TestUnauthorizedJoinRundownRejected(t *testing.T) {
	h := NewHub(denyAll{})
	c := newTestClient(h, 1, 7)
	h.registerClient(c)
	joinRundown(t, h, c, 42)

	assert.False(t, h.inRoom(c, RundownRoom(42)))
}

func TestCrossCompanyJoinCompanyRejected(t *testing.T) {
	h := NewHub(allowAll{})
	c := newTestClient(h, 1, 7)
	h.registerClient(c)

	raw, err := json.Marshal(dto.ControlMessage{Type: dto.ControlJoinCompany, CompanyID: 99})
	require.NoError(t, err)
	h.handleControl(HubMessage{Type: "control", Client: c, RawData: raw})

	assert.False(t, h.inRoom(c, CompanyRoom(99)))
	assert.True(t, h.inRoom(c, CompanyRoom(7)))
}

func TestUnregisterLeavesAllRoomsAndCollectsEmptyRooms(t *testing.T) {
	h := NewHub(allowAll{})
	c := newTestClient(h, 1, 7)
	h.registerClient(c)
	joinRundown(t, h, c, 42)
	joinRundown(t, h, c, 43)

	assert.ElementsMatch(t, []uint{42, 43}, h.ActiveRundownIDs())

	h.unregisterClient(c)

	assert.Empty(t, h.ActiveRundownIDs())
	h.roomsMu.RLock()
	assert.Empty(t, h.rooms, "empty rooms are removed from the hub")
	assert.Empty(t, h.clientRooms)
	h.roomsMu.RUnlock()

	_, stillOpen := <-c.send
	assert.False(t, stillOpen, "send channel is closed on unregister")
}

func TestLeaveRundownCollectsEmptyRoom(t *testing.T) {
	h := NewHub(allowAll{})
	c := newTestClient(h, 1, 7)
	h.registerClient(c)
	joinRundown(t, h, c, 42)
	require.ElementsMatch(t, []uint{42}, h.ActiveRundownIDs())

	raw, err := json.Marshal(dto.ControlMessage{Type: dto.ControlLeaveRundown, RundownID: 42})
	require.NoError(t, err)
	h.handleControl(HubMessage{Type: "control", Client: c, RawData: raw})

	assert.Empty(t, h.ActiveRundownIDs())
	assert.True(t, h.inRoom(c, CompanyRoom(7)), "leaving a rundown room keeps the company room")
}
