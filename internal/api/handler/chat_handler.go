package handler

import (
	"Sproutline/internal/api/dto"
	"Sproutline/internal/model"
	"Sproutline/internal/pkg/response"
	"Sproutline/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// currentParticipant 中间件注入的当前用户身份快照
func currentParticipant(c *gin.Context) model.Participant {
	return model.Participant{
		UserID:      c.GetString("user_id"),
		DisplayName: c.GetString("display_name"),
		Role:        c.GetString("role"),
	}
}

// CreateConversation 发起（或取回已有）会话
func (s *ChatHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	self := currentParticipant(c)
	target := model.Participant{
		UserID:      req.TargetUserID,
		DisplayName: req.TargetName,
		Role:        req.TargetRole,
	}

	res, err := s.chatService.CreateOrGetConversation(c, self, target)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息接口
func (s *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	self := currentParticipant(c)
	res, err := s.chatService.SendMessage(c, self.UserID, self.DisplayName, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 全量拉取会话消息
func (s *ChatHandler) GetMessages(c *gin.Context) {
	convID := c.Query("conversation_id")
	if convID == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.chatService.ListMessages(c, convID, c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkRead 标记会话内对方消息为已读
func (s *ChatHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := s.chatService.MarkConversationRead(c, req.ConversationID, c.GetString("user_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetConversationList 获取会话列表
func (s *ChatHandler) GetConversationList(c *gin.Context) {
	res, err := s.chatService.GetConversationList(c, c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetUnreadTotal 获取全局未读数
func (s *ChatHandler) GetUnreadTotal(c *gin.Context) {
	total, err := s.chatService.GetUnreadTotal(c, c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.UnreadTotalDTO{Total: total})
}

// DeleteConversation 从自己的列表删除会话
func (s *ChatHandler) DeleteConversation(c *gin.Context) {
	convID := c.Query("conversation_id")
	if convID == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := s.chatService.DeleteConversationForUser(c, convID, c.GetString("user_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
