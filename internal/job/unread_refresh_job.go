package job

import (
	"Sproutline/internal/pkg/logger"
	"Sproutline/internal/service"
	"context"
	"time"

	"github.com/google/uuid"
)

// UnreadRefreshJob 为在线用户预热全局未读数缓存
type UnreadRefreshJob struct {
	chatService service.ChatService
}

func NewUnreadRefreshJob(chatService service.ChatService) *UnreadRefreshJob {
	return &UnreadRefreshJob{chatService: chatService}
}

func (s *UnreadRefreshJob) Run() {
	traceID := "job-unread-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	s.chatService.RefreshUnreadCache(ctx)
}
