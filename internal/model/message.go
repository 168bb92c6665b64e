package model

import "fmt"

// Message 消息明细模型，存储于 MongoDB
type Message struct {
	ID             string `bson:"_id" json:"id"`                         // <convID>:<12位零填充Seq>
	ConversationID string `bson:"conversation_id" json:"conversationId"` // 关联 MySQL 的会话 ID
	SenderID       string `bson:"sender_id" json:"senderId"`
	SenderName     string `bson:"sender_name" json:"senderName"` // 发送时刻的快照
	MsgType        string `bson:"msg_type" json:"msgType"`       // 目前仅 text
	Body           string `bson:"body" json:"body"`
	Seq            uint64 `bson:"seq" json:"seq"`            // 会话内唯一绝对序号 (来自 MySQL)
	Timestamp      int64  `bson:"timestamp" json:"timestamp"` // 毫秒，会话内不回退
	Read           bool   `bson:"read" json:"read"`           // 仅 false -> true
}

// MessageID 生成消息 ID，零填充保证按生成顺序字典序排列
func MessageID(conversationID string, seq uint64) string {
	return fmt.Sprintf("%s:%012d", conversationID, seq)
}
