package notify

import "context"

// Notification 推送给对方参与者的送达通知
type Notification struct {
	RecipientID    string `json:"recipient_id"`
	RecipientRole  string `json:"recipient_role"`
	SenderName     string `json:"sender_name"`
	MessagePreview string `json:"message_preview"`
	ConversationID string `json:"conversation_id"`
}

// Notifier 外部通知通道。调用必须是尽力而为：失败由实现自行记录，
// 不允许影响消息发送的结果
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
	Close() error
}

// NoopNotifier 关闭通知时的空实现
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, n *Notification) error { return nil }
func (NoopNotifier) Close() error                                      { return nil }
