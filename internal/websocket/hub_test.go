package websocket

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHubForTest 构造不依赖服务层的 Hub
// 只测试房间管理和推送逻辑，不走 handleJoinSession 的归属校验
func newHubForTest() *Hub {
	return NewHub(nil, nil)
}

// recvMessage 从客户端的发送通道取出一条消息
func recvMessage(t *testing.T, c *Client) *Message {
	t.Helper()

	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	default:
		t.Fatal("no message in send channel")
		return nil
	}
}

func TestJoinRoomReplacesPrevious(t *testing.T) {
	hub := newHubForTest()
	client := NewClient(hub, nil, 1, "alice")

	hub.joinRoom(client, 100)
	assert.Equal(t, int64(100), hub.currentRoom(client))

	// 加入新房间后自动离开旧房间
	hub.joinRoom(client, 200)
	assert.Equal(t, int64(200), hub.currentRoom(client))

	hub.broadcastToSession(100, NewMessage(TypeAIThinking, &AIThinkingPayload{SessionID: 100}), nil)
	select {
	case <-client.send:
		t.Fatal("client should not receive messages from the old room")
	default:
	}

	hub.broadcastToSession(200, NewMessage(TypeAIThinking, &AIThinkingPayload{SessionID: 200}), nil)
	msg := recvMessage(t, client)
	assert.Equal(t, TypeAIThinking, msg.Type)
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := newHubForTest()
	sender := NewClient(hub, nil, 1, "alice")
	other := NewClient(hub, nil, 2, "bob")

	hub.joinRoom(sender, 100)
	hub.joinRoom(other, 100)

	hub.broadcastToSession(100, NewMessage(TypeUserTyping, &UserTypingPayload{
		SessionID: 100, UserID: 1, Username: "alice",
	}), sender)

	// 发送方不收到自己的 typing 广播
	select {
	case <-sender.send:
		t.Fatal("sender should be excluded from broadcast")
	default:
	}

	msg := recvMessage(t, other)
	assert.Equal(t, TypeUserTyping, msg.Type)
}

func TestNotifyEmptyRoomIsNoop(t *testing.T) {
	hub := newHubForTest()

	// 没有任何客户端时推送不应该 panic
	hub.NotifyThinking(999)
	hub.NotifyFailure(999, "boom")
}

func TestUnregisterLeavesRoom(t *testing.T) {
	hub := newHubForTest()
	client := NewClient(hub, nil, 1, "alice")

	hub.registerClient(client)
	hub.joinRoom(client, 100)
	hub.unregisterClient(client)

	assert.Zero(t, hub.currentRoom(client))

	hub.mu.RLock()
	_, roomExists := hub.rooms[100]
	_, userExists := hub.clients[1]
	hub.mu.RUnlock()
	assert.False(t, roomExists)
	assert.False(t, userExists)
}

func TestBroadcastAfterClientClose(t *testing.T) {
	hub := newHubForTest()
	closing := NewClient(hub, nil, 1, "alice")
	other := NewClient(hub, nil, 2, "bob")

	hub.joinRoom(closing, 100)
	hub.joinRoom(other, 100)

	// 客户端先关闭再收到房间广播时，消息丢弃，
	// 不能 panic，也不能影响其他连接的投递
	closing.Close()
	hub.broadcastToSession(100, NewMessage(TypeAIThinking, &AIThinkingPayload{SessionID: 100}), nil)

	msg := recvMessage(t, other)
	assert.Equal(t, TypeAIThinking, msg.Type)
}

func TestBroadcastConcurrentWithUnregister(t *testing.T) {
	hub := newHubForTest()
	for i := int64(1); i <= 8; i++ {
		c := NewClient(hub, nil, i, "user")
		hub.registerClient(c)
		hub.joinRoom(c, 100)
	}

	hub.mu.RLock()
	var clients []*Client
	for c := range hub.rooms[100] {
		clients = append(clients, c)
	}
	hub.mu.RUnlock()

	// 广播和注销并发执行时不能 panic
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hub.broadcastToSession(100, NewMessage(TypeAIThinking, &AIThinkingPayload{SessionID: 100}), nil)
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range clients {
			hub.unregisterClient(c)
		}
	}()
	wg.Wait()
}

func TestSendMessageAfterCloseIsNoop(t *testing.T) {
	hub := newHubForTest()
	client := NewClient(hub, nil, 1, "alice")

	client.Close()
	require.NoError(t, client.SendMessage(NewMessage(TypePong, nil)))

	// 重复关闭也必须安全
	client.Close()
}

func TestMessageEnvelope(t *testing.T) {
	msg := NewMessage(TypePong, nil)
	assert.Equal(t, TypePong, msg.Type)
	assert.NotEmpty(t, msg.MessageID)
	assert.NotZero(t, msg.Timestamp)
}
