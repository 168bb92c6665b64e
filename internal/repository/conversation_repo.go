package repository

import (
	"Sproutline/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConversationMissing 会话不存在
var ErrConversationMissing = errors.New("conversation not found")

// ErrConcurrentWrite 并发写冲突，调用方可整体重试
var ErrConcurrentWrite = errors.New("concurrent write conflict")

type ConversationRepo interface {
	// CreateOrGet 幂等创建：已存在则原样返回（含成员快照），bool 表示本次是否新建
	CreateOrGet(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) (*model.Conversation, bool, error)
	Get(ctx context.Context, convID string) (*model.Conversation, error)
	Members(ctx context.Context, convID string) ([]*model.ConversationMember, error)
	IsMember(ctx context.Context, convID string, userID string) (bool, error)

	// NextSeq 核心定序逻辑：行锁内分配序号、钳制时间戳并复显全部成员
	NextSeq(ctx context.Context, convID string, preview string, msgType string, senderID string, senderName string, nowMS int64) (uint64, int64, error)

	// ListForUser 用户保留的会话成员行，按最近消息时间倒序，无消息的排最后
	ListForUser(ctx context.Context, userID string) ([]*model.ConversationMember, error)
	// PeersFor 批量取各会话中除 userID 外的成员行
	PeersFor(ctx context.Context, convIDs []string, userID string) (map[string]*model.ConversationMember, error)

	// HideForUser 从用户的会话列表摘除引用，条目不存在时静默成功
	HideForUser(ctx context.Context, convID string, userID string) error
	// DeleteIfOrphaned 事务内复核引用数为零后硬删会话与成员行
	DeleteIfOrphaned(ctx context.Context, convID string) (bool, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

func (s *conversationRepoImpl) CreateOrGet(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) (*model.Conversation, bool, error) {
	existing, err := s.Get(ctx, conv.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrConversationMissing) {
		return nil, false, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.ConversationID = conv.ID
			m.JoinedAt = time.Now()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// 双方同时首次联系：主键冲突代表对方已建好，收敛到同一条记录
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, gerr := s.Get(ctx, conv.ID)
			if gerr != nil {
				// 建完又被删掉的窗口，交给上层重试
				return nil, false, errors.Wrap(ErrConcurrentWrite, "create raced with delete")
			}
			return existing, false, nil
		}
		return nil, false, errors.Wrap(err, "create conversation")
	}
	return conv, true, nil
}

func (s *conversationRepoImpl) Get(ctx context.Context, convID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", convID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return &conv, nil
}

func (s *conversationRepoImpl) Members(ctx context.Context, convID string) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("user_id").
		Find(&members).Error
	return members, errors.Wrap(err, "list members")
}

func (s *conversationRepoImpl) IsMember(ctx context.Context, convID string, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, errors.Wrap(err, "check membership")
}

func (s *conversationRepoImpl) NextSeq(ctx context.Context, convID string, preview string, msgType string, senderID string, senderName string, nowMS int64) (uint64, int64, error) {
	var seq uint64
	var ts int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", convID).First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationMissing
		}
		if err != nil {
			return err
		}

		seq = conv.MaxMsgSeq + 1
		// 时钟回拨时钳制到上一条 +1，保证会话内时间戳不回退
		ts = nowMS
		if ts <= conv.LastMsgTS {
			ts = conv.LastMsgTS + 1
		}

		err = tx.Model(&model.Conversation{}).Where("id = ?", convID).
			Updates(map[string]interface{}{
				"max_msg_seq":      seq,
				"last_msg_content": preview,
				"last_msg_type":    msgType,
				"last_sender_id":   senderID,
				"last_sender_name": senderName,
				"last_msg_ts":      ts,
			}).Error
		if err != nil {
			return err
		}
		// 唤醒所有成员会话可见性（“删除会话”后来新消息时自动浮现）
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ?", convID).
			Update("is_visible", 1).Error
	})
	if err != nil {
		if errors.Is(err, ErrConversationMissing) {
			return 0, 0, ErrConversationMissing
		}
		return 0, 0, errors.Wrap(err, "next seq")
	}
	return seq, ts, nil
}

func (s *conversationRepoImpl) ListForUser(ctx context.Context, userID string) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Select("m.*, "+
			"c.id AS `Conversation__id`, "+
			"c.max_msg_seq AS `Conversation__max_msg_seq`, "+
			"c.last_msg_content AS `Conversation__last_msg_content`, "+
			"c.last_msg_type AS `Conversation__last_msg_type`, "+
			"c.last_sender_id AS `Conversation__last_sender_id`, "+
			"c.last_sender_name AS `Conversation__last_sender_name`, "+
			"c.last_msg_ts AS `Conversation__last_msg_ts`, "+
			"c.created_at AS `Conversation__created_at`, "+
			"c.updated_at AS `Conversation__updated_at`").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ? AND m.is_visible = 1", userID).
		Order("c.last_msg_ts DESC, c.created_at DESC").
		Find(&members).Error
	return members, errors.Wrap(err, "list conversations")
}

func (s *conversationRepoImpl) PeersFor(ctx context.Context, convIDs []string, userID string) (map[string]*model.ConversationMember, error) {
	if len(convIDs) == 0 {
		return map[string]*model.ConversationMember{}, nil
	}
	var rows []*model.ConversationMember
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ? AND user_id <> ?", convIDs, userID).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "batch peers")
	}
	res := make(map[string]*model.ConversationMember, len(rows))
	for _, r := range rows {
		res[r.ConversationID] = r
	}
	return res, nil
}

func (s *conversationRepoImpl) HideForUser(ctx context.Context, convID string, userID string) error {
	// 条目不存在时影响行数为 0，本身就是静默 no-op
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("is_visible", 0).Error
	return errors.Wrap(err, "hide conversation")
}

func (s *conversationRepoImpl) DeleteIfOrphaned(ctx context.Context, convID string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住会话行，破坏性删除前在同一事务内复核引用数
		var conv model.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", convID).First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var retained int64
		err = tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND is_visible = 1", convID).
			Count(&retained).Error
		if err != nil {
			return err
		}
		if retained > 0 {
			return nil
		}

		if err = tx.Where("conversation_id = ?", convID).
			Delete(&model.ConversationMember{}).Error; err != nil {
			return err
		}
		if err = tx.Where("id = ?", convID).
			Delete(&model.Conversation{}).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, errors.Wrap(err, "delete orphaned conversation")
}
