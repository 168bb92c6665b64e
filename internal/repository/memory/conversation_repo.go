package memory

import (
	"Sproutline/internal/model"
	"context"
	"sort"
	"sync"
	"time"

	"Sproutline/internal/repository"
)

// ConversationRepo 内存实现，dev 模式与单测使用
type ConversationRepo struct {
	mu      sync.Mutex
	convs   map[string]*model.Conversation
	members map[string][]*model.ConversationMember // convID -> 成员行
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{
		convs:   make(map[string]*model.Conversation),
		members: make(map[string][]*model.ConversationMember),
	}
}

func cloneConv(c *model.Conversation) *model.Conversation {
	cp := *c
	return &cp
}

func cloneMember(m *model.ConversationMember) *model.ConversationMember {
	cp := *m
	return &cp
}

func (s *ConversationRepo) CreateOrGet(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) (*model.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.convs[conv.ID]; ok {
		return cloneConv(existing), false, nil
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.convs[conv.ID] = cloneConv(conv)
	rows := make([]*model.ConversationMember, 0, len(members))
	for _, m := range members {
		cp := cloneMember(m)
		cp.ConversationID = conv.ID
		cp.JoinedAt = now
		rows = append(rows, cp)
	}
	s.members[conv.ID] = rows
	return cloneConv(conv), true, nil
}

func (s *ConversationRepo) Get(ctx context.Context, convID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return nil, repository.ErrConversationMissing
	}
	return cloneConv(conv), nil
}

func (s *ConversationRepo) Members(ctx context.Context, convID string) ([]*model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.members[convID]
	res := make([]*model.ConversationMember, 0, len(rows))
	for _, m := range rows {
		res = append(res, cloneMember(m))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (s *ConversationRepo) IsMember(ctx context.Context, convID string, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[convID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ConversationRepo) NextSeq(ctx context.Context, convID string, preview string, msgType string, senderID string, senderName string, nowMS int64) (uint64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return 0, 0, repository.ErrConversationMissing
	}

	conv.MaxMsgSeq++
	ts := nowMS
	if ts <= conv.LastMsgTS {
		ts = conv.LastMsgTS + 1
	}
	conv.LastMsgTS = ts
	conv.LastMsgContent = preview
	conv.LastMsgType = msgType
	conv.LastSenderID = senderID
	conv.LastSenderName = senderName
	conv.UpdatedAt = time.Now()

	for _, m := range s.members[convID] {
		m.IsVisible = 1
	}
	return conv.MaxMsgSeq, ts, nil
}

func (s *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*model.ConversationMember
	for convID, rows := range s.members {
		for _, m := range rows {
			if m.UserID != userID || m.IsVisible != 1 {
				continue
			}
			cp := cloneMember(m)
			cp.Conversation = *s.convs[convID]
			res = append(res, cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].Conversation, res[j].Conversation
		if a.LastMsgTS != b.LastMsgTS {
			return a.LastMsgTS > b.LastMsgTS
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return res, nil
}

func (s *ConversationRepo) PeersFor(ctx context.Context, convIDs []string, userID string) (map[string]*model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[string]*model.ConversationMember, len(convIDs))
	for _, convID := range convIDs {
		for _, m := range s.members[convID] {
			if m.UserID != userID {
				res[convID] = cloneMember(m)
			}
		}
	}
	return res, nil
}

func (s *ConversationRepo) HideForUser(ctx context.Context, convID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[convID] {
		if m.UserID == userID {
			m.IsVisible = 0
		}
	}
	return nil
}

func (s *ConversationRepo) DeleteIfOrphaned(ctx context.Context, convID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[convID]; !ok {
		return false, nil
	}
	for _, m := range s.members[convID] {
		if m.IsVisible == 1 {
			return false, nil
		}
	}
	delete(s.convs, convID)
	delete(s.members, convID)
	return true, nil
}
