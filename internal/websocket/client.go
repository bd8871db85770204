// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ai-pc-server/pkg/response"
)

// Client 表示一个 WebSocket 客户端连接
type Client struct {
	hub      *Hub            // 所属的 Hub
	conn     *websocket.Conn // WebSocket 连接
	send     chan []byte     // 发送消息的通道
	userID   int64           // 用户ID
	username string          // 用户名
	mu       sync.Mutex      // 保护关闭操作的互斥锁
	closed   bool            // send 通道是否已关闭
}

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（64KB，纯文本对话不需要更大）
	maxMessageSize = 64 * 1024
)

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID int64, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256), // 缓冲区大小
		userID:   userID,
		username: username,
	}
}

// ReadPump 读取 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 ReadPump
// 负责从 WebSocket 读取消息并分发处理
func (c *Client) ReadPump() {
	// 确保退出时清理资源
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// 每次收到 Pong，重置读取超时
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		// 解析消息
		// 格式错误只回一条 error，不断开连接
		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.SendError(response.CodeBadRequest, "消息格式错误", 0)
			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump 写入 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 WritePump
// 负责从 send 通道读取消息并写入 WebSocket
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// send 通道已关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// 发送协议层 Ping
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 向客户端发送消息
// 连接已关闭时直接丢弃，不影响对其他连接的推送
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// 与 Close 持同一把锁，避免向已关闭的通道发送
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	// 非阻塞发送
	select {
	case c.send <- data:
		return nil
	default:
		// 通道已满，说明客户端处理不过来，丢弃消息
		log.Printf("Client send buffer full, dropping message: userID=%d", c.userID)
		return nil
	}
}

// SendError 向客户端发送错误消息
func (c *Client) SendError(code int, message string, sessionID int64) {
	c.SendMessage(NewMessage(TypeError, &ErrorPayload{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
	}))
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case TypePing:
		// 应用层心跳，直接回 Pong
		c.SendMessage(NewMessage(TypePong, nil))

	case TypeJoinSession:
		c.hub.handleJoinSession(c, msg)

	case TypeSendMessage:
		c.hub.handleSendMessage(c, msg)

	case TypeTyping:
		c.hub.handleTyping(c, msg)

	default:
		c.SendError(response.CodeBadRequest, "未知的消息类型: "+msg.Type, 0)
	}
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
