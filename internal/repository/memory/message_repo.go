package memory

import (
	"Sproutline/internal/model"
	"context"
	"sort"
	"sync"
)

// MessageRepo 内存消息日志，追加有序
type MessageRepo struct {
	mu       sync.RWMutex
	messages map[string][]*model.Message // convID -> 按追加顺序
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{messages: make(map[string][]*model.Message)}
}

func (s *MessageRepo) Append(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	return nil
}

func (s *MessageRepo) List(ctx context.Context, convID string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[convID]
	res := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		res = append(res, &cp)
	}
	// 时间戳相同则按 Seq 保持插入顺序
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Timestamp != res[j].Timestamp {
			return res[i].Timestamp < res[j].Timestamp
		}
		return res[i].Seq < res[j].Seq
	})
	return res, nil
}

func (s *MessageRepo) CountUnread(ctx context.Context, convID string, viewerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.messages[convID] {
		if m.SenderID != viewerID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (s *MessageRepo) MarkAllRead(ctx context.Context, convID string, viewerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages[convID] {
		if m.SenderID != viewerID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *MessageRepo) PurgeConversation(ctx context.Context, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, convID)
	return nil
}

func (s *MessageRepo) ConversationIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, 0, len(s.messages))
	for id := range s.messages {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}
