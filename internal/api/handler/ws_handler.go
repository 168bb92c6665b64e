package handler

import (
	"Sproutline/internal/api/dto"
	"Sproutline/internal/pkg/response"
	"Sproutline/internal/pkg/security"
	"Sproutline/internal/service"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope 推送帧：每次都是完整快照而非增量
type wsEnvelope struct {
	Type string      `json:"type"` // conversations | messages
	Data interface{} `json:"data"`
}

type WsHandler struct {
	chatService service.ChatService
}

func NewWsHandler(chatService service.ChatService) *WsHandler {
	return &WsHandler{chatService: chatService}
}

// Connect 订阅推送通道。带 conversation_id 查询参数时推该会话的消息流，
// 否则推当前用户的会话列表流
func (s *WsHandler) Connect(c *gin.Context) {
	// 浏览器 WS 不带 Header，令牌走查询参数
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	out := make(chan []byte, 16)
	stopChan := make(chan struct{})

	push := func(envType string, data interface{}) {
		b, err := json.Marshal(wsEnvelope{Type: envType, Data: data})
		if err != nil {
			return
		}
		select {
		case out <- b:
		case <-stopChan:
		default:
			// 写缓冲积压时丢弃本帧，下一帧仍是完整快照
		}
	}

	var cancel func()
	if convID := c.Query("conversation_id"); convID != "" {
		cancel = s.chatService.SubscribeMessages(convID, func(msgs []*dto.MessageDTO) {
			push("messages", msgs)
		})
	} else {
		cancel = s.chatService.SubscribeConversations(userID, func(list []*dto.ConversationDTO) {
			push("conversations", list)
		})
	}
	defer cancel()

	log.Info("用户 WS 连接已建立", "userID", userID)

	// 读循环：监听客户端主动断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(stopChan)
				return
			}
		}
	}()

	// 写循环：推送快照至客户端
	for {
		select {
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Error("WS 推送失败", "userID", userID, "err", err)
				return
			}
		case <-stopChan:
			log.Info("用户 WS 连接已断开", "userID", userID)
			return
		}
	}
}
