package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/echosoul/backend/internal/core/errx"
	chatService "github.com/echosoul/backend/internal/service/chat"
	logx "github.com/echosoul/backend/pkg/logger"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Processor runs a chat turn.
type Processor interface {
	Process(ctx context.Context, req chatService.TurnRequest) (chatService.TurnResult, error)
}

// Handler WebSocket聊天处理器，每个入站帧执行一轮对话
type Handler struct {
	processor Processor
	upgrader  websocket.Upgrader
}

// New 创建WebSocket处理器。allowedOrigin 为空或 "*" 时不校验来源
func New(processor Processor, allowedOrigin string) *Handler {
	return &Handler{
		processor: processor,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
					return true
				}
				return strings.EqualFold(origin, allowedOrigin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

type inboundMessage struct {
	Message   string `json:"message"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &conn{Conn: raw}
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	// The conversation sticks to the connection once known.
	var chatID string
	for {
		var msg inboundMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logx.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.ChatID != "" {
			chatID = msg.ChatID
		}

		result, err := h.processor.Process(ctx, chatService.TurnRequest{
			Message:        msg.Message,
			ConversationID: chatID,
			MessageID:      msg.MessageID,
		})
		if err != nil {
			_, message := errx.Resolve(err)
			if sendErr := c.send(outgoingMessage{Type: "error", Error: message, Timestamp: time.Now().Unix()}); sendErr != nil {
				return
			}
			continue
		}

		chatID = result.ConversationID
		if err := c.send(outgoingMessage{Type: "result", Data: result, Timestamp: time.Now().Unix()}); err != nil {
			logx.Warn().Err(err).Str("chat_id", chatID).Msg("websocket write failed")
			return
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
