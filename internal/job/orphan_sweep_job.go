package job

import (
	"Sproutline/internal/pkg/logger"
	"Sproutline/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

// OrphanSweepJob 清理硬删会话后残留的消息。删除路径里的消息清理是
// 尽力而为，失败时靠这里兜底
type OrphanSweepJob struct {
	convRepo repository.ConversationRepo
	msgRepo  repository.MessageRepo
}

func NewOrphanSweepJob(convRepo repository.ConversationRepo, msgRepo repository.MessageRepo) *OrphanSweepJob {
	return &OrphanSweepJob{convRepo: convRepo, msgRepo: msgRepo}
}

func (s *OrphanSweepJob) Run() {
	traceID := "job-sweep-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	convIDs, err := s.msgRepo.ConversationIDs(ctx)
	if err != nil {
		log.ErrorContext(ctx, "孤儿消息扫描失败", "err", err)
		return
	}

	swept := 0
	for _, convID := range convIDs {
		_, err := s.convRepo.Get(ctx, convID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrConversationMissing) {
			log.WarnContext(ctx, "会话查询失败，跳过", "conversation", convID, "err", err)
			continue
		}
		if err := s.msgRepo.PurgeConversation(ctx, convID); err != nil {
			log.WarnContext(ctx, "孤儿消息清理失败", "conversation", convID, "err", err)
			continue
		}
		swept++
	}

	if swept > 0 {
		log.InfoContext(ctx, "孤儿消息清理完成", "conversations", swept)
	}
}
