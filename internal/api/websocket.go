// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// WebSocketClient 一个订阅变更推送的编辑器连接
type WebSocketClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closed    int32 // 0=开启，1=关闭
	lastPing  int64 // unix nano
	createdAt time.Time
}

// Close 安全关闭底层连接，send 通道由管理器关闭
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后心跳时间
func (client *WebSocketClient) UpdatePing() {
	atomic.StoreInt64(&client.lastPing, time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, atomic.LoadInt64(&client.lastPing))) > timeout
}

// WebSocketManager fans change events out to every connected editor.
// Events are advisory: a client whose buffer is full misses the event.
type WebSocketManager struct {
	clients    map[*WebSocketClient]struct{}
	broadcast  chan []byte
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	mutex      sync.RWMutex

	upgrader    websocket.Upgrader
	pingTimeout time.Duration
	logger      *zap.Logger
	metrics     *utils.Metrics
	nextID      uint64
}

// NewWebSocketManager 创建管理器，需调用 Run 启动主循环
func NewWebSocketManager(strictOrigin bool, allowedOrigins []string, logger *zap.Logger, metrics *utils.Metrics) *WebSocketManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	manager := &WebSocketManager{
		clients:     make(map[*WebSocketClient]struct{}),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *WebSocketClient, 16),
		unregister:  make(chan *WebSocketClient, 16),
		done:        make(chan struct{}),
		pingTimeout: 2 * pongWait,
		logger:      logger.Named("websocket"),
		metrics:     metrics,
	}
	manager.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return !strictOrigin
			}
			if _, ok := allowed[origin]; ok || r.Host == "" {
				return true
			}
			return sameOrigin(origin, r.Host)
		},
	}
	return manager
}

// Run 运行管理器主循环，直到 ctx 取消
func (manager *WebSocketManager) Run(ctx context.Context) {
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()
	defer close(manager.done)

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.unregisterClient(client)

		case <-cleanupTicker.C:
			manager.cleanupExpiredConnections()

		case message := <-manager.broadcast:
			manager.broadcastMessage(message)

		case <-ctx.Done():
			manager.shutdown()
			return
		}
	}
}

// Publish implements services.EventPublisher. It never blocks the caller.
func (manager *WebSocketManager) Publish(event models.ChangeEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		manager.logger.Warn("encode change event failed", zap.Error(err))
		return
	}

	select {
	case manager.broadcast <- message:
	case <-manager.done:
	default:
		manager.logger.Warn("change feed saturated, event dropped", zap.String("type", string(event.Type)))
	}
}

// ClientCount 当前连接数
func (manager *WebSocketManager) ClientCount() int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.clients)
}

// ServeWS 升级连接并在当前 goroutine 中运行读循环
func (manager *WebSocketManager) ServeWS(c *gin.Context) {
	select {
	case <-manager.done:
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := manager.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写出错误响应
		manager.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("request_id", getRequestID(c)))
		return
	}

	client := &WebSocketClient{
		id:        c.ClientIP() + "#" + strconv.FormatUint(atomic.AddUint64(&manager.nextID, 1), 10),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		createdAt: time.Now(),
	}
	client.UpdatePing()

	select {
	case manager.register <- client:
	case <-manager.done:
		conn.Close()
		return
	}

	go manager.writePump(client)
	manager.readPump(client)
}

func (manager *WebSocketManager) readPump(client *WebSocketClient) {
	defer func() {
		select {
		case manager.unregister <- client:
		case <-manager.done:
		}
		client.Close()
	}()

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// 推送是单向的，客户端消息只用于保持连接
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				manager.logger.Debug("websocket read error", zap.String("client", client.id), zap.Error(err))
			}
			return
		}
		client.UpdatePing()
	}
}

func (manager *WebSocketManager) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// registerClient 注册新客户端
func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	manager.mutex.Lock()
	manager.clients[client] = struct{}{}
	count := len(manager.clients)
	manager.mutex.Unlock()

	manager.setGauge(count)
	manager.logger.Info("editor connected", zap.String("client", client.id), zap.Int("clients", count))
}

// unregisterClient 移除客户端并关闭其发送队列，重复注销是安全的
func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	manager.mutex.Lock()
	_, exists := manager.clients[client]
	if exists {
		delete(manager.clients, client)
		close(client.send)
	}
	count := len(manager.clients)
	manager.mutex.Unlock()

	if exists {
		manager.setGauge(count)
		manager.logger.Info("editor disconnected",
			zap.String("client", client.id),
			zap.Duration("connected", time.Since(client.createdAt)),
			zap.Int("clients", count))
	}
}

// cleanupExpiredConnections 清理超时未响应心跳的连接
func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.RLock()
	expired := make([]*WebSocketClient, 0)
	for client := range manager.clients {
		if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
			expired = append(expired, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range expired {
		manager.unregisterClient(client)
	}
}

// broadcastMessage 非阻塞地投递到每个客户端队列
func (manager *WebSocketManager) broadcastMessage(message []byte) {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	for client := range manager.clients {
		select {
		case client.send <- message:
		default:
			manager.logger.Warn("client queue full, event dropped", zap.String("client", client.id))
		}
	}
}

// shutdown 关闭所有连接
func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	for client := range manager.clients {
		delete(manager.clients, client)
		close(client.send)
	}
	manager.mutex.Unlock()

	manager.setGauge(0)
	manager.logger.Info("websocket manager stopped")
}

func (manager *WebSocketManager) setGauge(count int) {
	if manager.metrics != nil {
		manager.metrics.EventClients.Set(float64(count))
	}
}
