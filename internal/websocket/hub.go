package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatUnique/keyguard-pro/internal/auth"
	"github.com/chatUnique/keyguard-pro/internal/domain"
)

const (
	sendBufferSize = 256
	pingInterval   = 30 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// TokenValidator 校验任务令牌
type TokenValidator interface {
	Validate(token, jobID string) (*auth.JobClaims, error)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeProgress    MessageType = "progress"
	MessageTypeItem        MessageType = "item"
	MessageTypeComplete    MessageType = "complete"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	JobID     string          `json:"jobId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	// Token 仅用于客户端订阅其他任务
	Token string `json:"token,omitempty"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger

	mu     sync.RWMutex
	jobIDs map[string]bool
}

// Hub 管理所有WebSocket连接，按任务分发进度
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client            // clientID -> Client
	jobs      map[string]map[string]*Client // jobID -> clientID -> Client
	broadcast chan *BroadcastMessage

	log            *zap.Logger
	allowedOrigins []string
	tokens         TokenValidator
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	JobID   string
	Message *Message
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，为空时允许所有
//   - tokens: 任务令牌校验器
func NewHub(allowedOrigins []string, tokens TokenValidator, logger *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:        make(map[string]*Client),
		jobs:           make(map[string]map[string]*Client),
		broadcast:      make(chan *BroadcastMessage, sendBufferSize),
		log:            logger,
		allowedOrigins: allowedOrigins,
		tokens:         tokens,
	}
}

// Run 启动Hub，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("WebSocket hub stopped")
			h.closeAllClients()
			return

		case msg := <-h.broadcast:
			h.broadcastToJob(msg.JobID, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount 订阅某任务的连接数
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jobs[jobID])
}

// ========== 通知 ==========

// NotifyProgress 推送统计
func (h *Hub) NotifyProgress(jobID string, stats domain.BatchStatistics) {
	h.publish(jobID, MessageTypeProgress, stats)
}

// NotifyItem 推送单个条目状态，条目不含密钥
func (h *Hub) NotifyItem(jobID string, item domain.WorkItem) {
	item.Redact()
	h.publish(jobID, MessageTypeItem, item)
}

// NotifyComplete 推送任务结束
func (h *Hub) NotifyComplete(jobID string, snapshot *domain.JobSnapshot) {
	h.publish(jobID, MessageTypeComplete, snapshot)
}

func (h *Hub) publish(jobID string, t MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Failed to marshal websocket payload", zap.String("type", string(t)), zap.Error(err))
		return
	}

	msg := &BroadcastMessage{
		JobID: jobID,
		Message: &Message{
			Type:      t,
			JobID:     jobID,
			Data:      data,
			Timestamp: time.Now(),
		},
	}

	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("Broadcast channel full, dropping message",
			zap.String("job_id", jobID),
			zap.String("type", string(t)))
	}
}

// broadcastToJob 向订阅特定任务的客户端广播消息
func (h *Hub) broadcastToJob(jobID string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.jobs[jobID] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("Client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.jobs = make(map[string]map[string]*Client)
}

// ========== 连接管理 ==========

func (h *Hub) addClient(client *Client, jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.subscribeLocked(client, jobID)
}

func (h *Hub) subscribeLocked(client *Client, jobID string) {
	if h.jobs[jobID] == nil {
		h.jobs[jobID] = make(map[string]*Client)
	}
	h.jobs[jobID][client.ID] = client

	client.mu.Lock()
	client.jobIDs[jobID] = true
	client.mu.Unlock()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	client.mu.RLock()
	for jobID := range client.jobIDs {
		if subs, exists := h.jobs[jobID]; exists {
			delete(subs, client.ID)
			if len(subs) == 0 {
				delete(h.jobs, jobID)
			}
		}
	}
	client.mu.RUnlock()

	delete(h.clients, client.ID)
	close(client.send)
	h.log.Info("Client unregistered", zap.String("client_id", client.ID))
}

// tokenFromRequest 从URL参数或Header获取token
func tokenFromRequest(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// HandleWebSocket 处理任务进度订阅连接，路径参数 id 为任务ID
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		jobID := c.Param("id")
		token := tokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "缺少任务令牌"})
			return
		}
		if _, err := hub.tokens.Validate(token, jobID); err != nil {
			hub.log.Warn("WebSocket authentication failed",
				zap.String("job_id", jobID),
				zap.String("remote_addr", c.ClientIP()),
				zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "任务令牌无效"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("Failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			conn:   conn,
			send:   make(chan []byte, sendBufferSize),
			hub:    hub,
			log:    hub.log,
			jobIDs: make(map[string]bool),
		}
		hub.addClient(client, jobID)
		client.sendMessage(&Message{Type: MessageTypeSubscribed, JobID: jobID, Timestamp: time.Now()})

		hub.log.Info("Client registered",
			zap.String("client_id", client.ID),
			zap.String("job_id", jobID))

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if err := c.subscribe(msg.JobID, msg.Token); err != nil {
			c.sendError(msg.JobID, err.Error())
		}
	case MessageTypeUnsubscribe:
		c.unsubscribe(msg.JobID)
	case MessageTypePing:
		c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	default:
		c.log.Warn("Unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribe 订阅其他任务，需要该任务的令牌
func (c *Client) subscribe(jobID, token string) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}
	if _, err := c.hub.tokens.Validate(token, jobID); err != nil {
		c.log.Warn("Subscription denied",
			zap.String("client_id", c.ID),
			zap.String("job_id", jobID),
			zap.Error(err))
		return errors.New("no permission to access job")
	}

	c.hub.mu.Lock()
	if _, ok := c.hub.clients[c.ID]; ok {
		c.hub.subscribeLocked(c, jobID)
	}
	c.hub.mu.Unlock()

	c.sendMessage(&Message{Type: MessageTypeSubscribed, JobID: jobID, Timestamp: time.Now()})
	return nil
}

// unsubscribe 取消订阅任务
func (c *Client) unsubscribe(jobID string) {
	c.mu.Lock()
	delete(c.jobIDs, jobID)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if subs, exists := c.hub.jobs[jobID]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(c.hub.jobs, jobID)
		}
	}
	c.hub.mu.Unlock()
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(jobID, errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		JobID:     jobID,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端，连接已关闭时丢弃
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("Failed to marshal message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.ID]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("Client channel blocked", zap.String("client_id", c.ID))
	}
}
