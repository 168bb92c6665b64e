package service

import (
	"Sproutline/internal/api/dto"
	"Sproutline/internal/pkg/hub"
	"context"
	log "log/slog"
	"time"
)

// snapshotTimeout 单次快照重算的耗时上限
const snapshotTimeout = 5 * time.Second

// SubscribeConversations 订阅用户会话列表。先推当前快照，之后每次扰动
// 重算整张列表再推送。返回的取消函数幂等
func (s *chatServiceImpl) SubscribeConversations(userID string, onUpdate func([]*dto.ConversationDTO)) func() {
	sub := s.hub.Subscribe(hub.UserTopic(userID))
	go func() {
		s.pushConversationSnapshot(sub, userID, onUpdate)
		for {
			select {
			case <-sub.Signal():
				s.pushConversationSnapshot(sub, userID, onUpdate)
			case <-sub.Done():
				return
			}
		}
	}()
	return sub.Cancel
}

// SubscribeMessages 订阅单个会话的消息列表。会话不存在时推空快照，
// 之后有消息落库再补推
func (s *chatServiceImpl) SubscribeMessages(convID string, onUpdate func([]*dto.MessageDTO)) func() {
	sub := s.hub.Subscribe(hub.ConvTopic(convID))
	go func() {
		s.pushMessageSnapshot(sub, convID, onUpdate)
		for {
			select {
			case <-sub.Signal():
				s.pushMessageSnapshot(sub, convID, onUpdate)
			case <-sub.Done():
				return
			}
		}
	}()
	return sub.Cancel
}

func (s *chatServiceImpl) pushConversationSnapshot(sub *hub.Subscription, userID string, onUpdate func([]*dto.ConversationDTO)) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	list, err := s.GetConversationList(ctx, userID)
	if err != nil {
		log.Warn("会话列表快照重算失败", "userID", userID, "err", err)
		return
	}
	select {
	case <-sub.Done():
	default:
		onUpdate(list)
	}
}

func (s *chatServiceImpl) pushMessageSnapshot(sub *hub.Subscription, convID string, onUpdate func([]*dto.MessageDTO)) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	msgs, err := s.msgRepo.List(ctx, convID)
	if err != nil {
		log.Warn("消息快照重算失败", "conversation", convID, "err", err)
		return
	}
	select {
	case <-sub.Done():
	default:
		onUpdate(s.toMessageDTOs(msgs))
	}
}
