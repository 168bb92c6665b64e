package repository

import (
	"Sproutline/internal/model"
	"context"
)

// MessageRepo 消息日志存储。实现见 pkg/mongo（生产）与 repository/memory（内存驱动）
type MessageRepo interface {
	Append(ctx context.Context, msg *model.Message) error
	// List 按时间戳升序返回全量消息，同时间戳按 Seq 稳定排序
	List(ctx context.Context, convID string) ([]*model.Message, error)
	// CountUnread 对方发出且未读的消息数
	CountUnread(ctx context.Context, convID string, viewerID string) (int64, error)
	// MarkAllRead 单次批量置读，返回实际修改条数，无未读时为 0
	MarkAllRead(ctx context.Context, convID string, viewerID string) (int64, error)
	// PurgeConversation 硬删会话的全部消息
	PurgeConversation(ctx context.Context, convID string) error
	// ConversationIDs 留存消息的会话 ID 去重列表，孤儿清理任务使用
	ConversationIDs(ctx context.Context) ([]string, error)
}
