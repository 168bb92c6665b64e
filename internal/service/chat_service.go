package service

import (
	"Sproutline/internal/api/dto"
	"Sproutline/internal/model"
	"Sproutline/internal/pkg/consts"
	"Sproutline/internal/pkg/hub"
	"Sproutline/internal/pkg/notify"
	"Sproutline/internal/pkg/redis"
	"Sproutline/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"golang.org/x/sync/singleflight"
)

// createRetryLimit 并发冲突的内部重试上限
const createRetryLimit = 3

// ChatService 站内私信服务接口定义
type ChatService interface {
	CreateOrGetConversation(ctx context.Context, self, target model.Participant) (*dto.ConversationDTO, error)
	SendMessage(ctx context.Context, senderID, senderName string, req *dto.SendMessageReq) (*dto.SendMessageResp, error)
	ListMessages(ctx context.Context, convID, viewerID string) ([]*dto.MessageDTO, error)
	MarkConversationRead(ctx context.Context, convID, viewerID string) error
	GetConversationList(ctx context.Context, userID string) ([]*dto.ConversationDTO, error)
	GetUnreadTotal(ctx context.Context, userID string) (int64, error)
	DeleteConversationForUser(ctx context.Context, convID, userID string) error

	SubscribeConversations(userID string, onUpdate func([]*dto.ConversationDTO)) func()
	SubscribeMessages(convID string, onUpdate func([]*dto.MessageDTO)) func()

	RefreshUnreadCache(ctx context.Context)
	Close()
}

type chatServiceImpl struct {
	convRepo repository.ConversationRepo
	msgRepo  repository.MessageRepo
	hub      *hub.Hub
	bus      hub.Publisher
	notifier notify.Notifier
	useCache bool

	createGroup singleflight.Group

	retryChan chan *model.Message
	wg        sync.WaitGroup
	stopChan  chan struct{}
}

// NewChatService 构造函数：初始化服务并启动异步补偿工作池
func NewChatService(
	convRepo repository.ConversationRepo,
	msgRepo repository.MessageRepo,
	h *hub.Hub,
	bus hub.Publisher,
	notifier notify.Notifier,
	useCache bool,
) ChatService {
	s := &chatServiceImpl{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		hub:       h,
		bus:       bus,
		notifier:  notifier,
		useCache:  useCache,
		retryChan: make(chan *model.Message, 2048),
		stopChan:  make(chan struct{}),
	}

	workerCount := 3
	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.appendRetryWorker()
	}

	return s
}

// CreateOrGetConversation 幂等创建会话。双方同时首次联系时，推导出的
// 会话 ID 使两次调用收敛到同一条记录
func (s *chatServiceImpl) CreateOrGetConversation(ctx context.Context, self, target model.Participant) (*dto.ConversationDTO, error) {
	if !model.ValidUserID(self.UserID) || !model.ValidUserID(target.UserID) {
		return nil, ErrParamInvalid
	}
	if self.UserID == target.UserID {
		return nil, ErrSelfConversation
	}

	key := model.ConversationKey(self.UserID, target.UserID)

	// 同实例的并发创建合并成一次落库
	v, err, _ := s.createGroup.Do(key, func() (interface{}, error) {
		for i := 0; i < createRetryLimit; i++ {
			conv := &model.Conversation{ID: key, LastMsgType: consts.MsgTypeText}
			members := []*model.ConversationMember{
				{UserID: self.UserID, DisplayName: self.DisplayName, Role: self.Role, IsVisible: 1},
				{UserID: target.UserID, DisplayName: target.DisplayName, Role: target.Role, IsVisible: 1},
			}
			got, created, err := s.convRepo.CreateOrGet(ctx, conv, members)
			if errors.Is(err, repository.ErrConcurrentWrite) {
				continue
			}
			if err != nil {
				log.Error("创建会话失败", "conversation", key, "err", err)
				return nil, UnExpectedError
			}
			if created {
				s.bus.Publish(hub.UserTopic(self.UserID), hub.UserTopic(target.UserID))
			}
			return got, nil
		}
		return nil, ErrConflictRetry
	})
	if err != nil {
		return nil, err
	}

	return s.toConversationDTO(ctx, v.(*model.Conversation), self.UserID)
}

// SendMessage 发送消息。通知派发是尽力而为，失败只记日志，
// 不影响发送结果
func (s *chatServiceImpl) SendMessage(ctx context.Context, senderID, senderName string, req *dto.SendMessageReq) (*dto.SendMessageResp, error) {
	body := req.Body
	if strings.TrimSpace(body) == "" {
		return nil, ErrBodyEmpty
	}
	msgType := req.MsgType
	if msgType == "" {
		msgType = consts.MsgTypeText
	}

	peerID, ok := model.PeerOf(req.ConversationID, senderID)
	if !ok {
		return nil, ErrNotMember
	}

	// MySQL 行锁内定序并钳制时间戳
	preview := truncateRunes(body, consts.PreviewMaxRunes)
	seq, ts, err := s.convRepo.NextSeq(ctx, req.ConversationID, preview, msgType, senderID, senderName, time.Now().UnixMilli())
	if err != nil {
		if errors.Is(err, repository.ErrConversationMissing) {
			return nil, ErrConversationNotFound
		}
		log.Error("消息定序失败", "conversation", req.ConversationID, "err", err)
		return nil, UnExpectedError
	}

	msg := &model.Message{
		ID:             model.MessageID(req.ConversationID, seq),
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		MsgType:        msgType,
		Body:           body,
		Seq:            seq,
		Timestamp:      ts,
		Read:           false,
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.msgRepo.Append(writeCtx, msg); err != nil {
		// 定序已经占位，明细补偿写入
		log.Warn("消息明细写入失败，转入补偿队列", "id", msg.ID, "err", err)
		select {
		case s.retryChan <- msg:
		default:
		}
	}

	s.bus.Publish(
		hub.ConvTopic(req.ConversationID),
		hub.UserTopic(senderID),
		hub.UserTopic(peerID),
	)
	s.invalidateUnreadCache(peerID)

	go s.notifyPeer(msg, peerID)

	return &dto.SendMessageResp{MessageID: msg.ID}, nil
}

// ListMessages 全量拉取会话消息，时间戳升序
func (s *chatServiceImpl) ListMessages(ctx context.Context, convID, viewerID string) ([]*dto.MessageDTO, error) {
	if _, ok := model.PeerOf(convID, viewerID); !ok {
		return nil, ErrNotMember
	}
	msgs, err := s.msgRepo.List(ctx, convID)
	if err != nil {
		log.Error("拉取消息失败", "conversation", convID, "err", err)
		return nil, UnExpectedError
	}
	return s.toMessageDTOs(msgs), nil
}

// MarkConversationRead 把对方发来的未读消息批量置读，幂等
func (s *chatServiceImpl) MarkConversationRead(ctx context.Context, convID, viewerID string) error {
	peerID, ok := model.PeerOf(convID, viewerID)
	if !ok {
		return ErrNotMember
	}
	if _, err := s.convRepo.Get(ctx, convID); err != nil {
		if errors.Is(err, repository.ErrConversationMissing) {
			return ErrConversationNotFound
		}
		return UnExpectedError
	}

	changed, err := s.msgRepo.MarkAllRead(ctx, convID, viewerID)
	if err != nil {
		log.Error("批量置读失败", "conversation", convID, "err", err)
		return UnExpectedError
	}
	if changed > 0 {
		s.bus.Publish(
			hub.ConvTopic(convID),
			hub.UserTopic(viewerID),
			hub.UserTopic(peerID),
		)
		s.invalidateUnreadCache(viewerID)
	}
	return nil
}

// GetConversationList 用户保留的会话列表，最近消息倒序，无消息的排最后
func (s *chatServiceImpl) GetConversationList(ctx context.Context, userID string) ([]*dto.ConversationDTO, error) {
	rows, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		log.Error("拉取会话列表失败", "userID", userID, "err", err)
		return nil, UnExpectedError
	}

	convIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		convIDs = append(convIDs, r.ConversationID)
	}
	peers, err := s.convRepo.PeersFor(ctx, convIDs, userID)
	if err != nil {
		return nil, UnExpectedError
	}

	res := make([]*dto.ConversationDTO, 0, len(rows))
	for _, r := range rows {
		conv := r.Conversation
		unread, err := s.msgRepo.CountUnread(ctx, r.ConversationID, userID)
		if err != nil {
			return nil, UnExpectedError
		}
		d := &dto.ConversationDTO{
			ConversationID: r.ConversationID,
			LastMessage:    lastMessageDTO(&conv),
			UnreadCount:    unread,
			CreatedAt:      conv.CreatedAt.UnixMilli(),
			UpdatedAt:      conv.UpdatedAt.UnixMilli(),
		}
		if peer, ok := peers[r.ConversationID]; ok {
			d.Peer = toParticipantDTO(peer)
		}
		res = append(res, d)
	}
	return res, nil
}

// GetUnreadTotal 全局未读数。全量重算避免增量漂移，结果缓存 30 秒
func (s *chatServiceImpl) GetUnreadTotal(ctx context.Context, userID string) (int64, error) {
	if s.useCache {
		if v, err := redis.GetValue(ctx, consts.ChatUnreadTotalKey+userID); err == nil && v != "" {
			if total, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				return total, nil
			}
		}
	}

	total, err := s.computeUnreadTotal(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.useCache {
		if err := redis.SetWithExpiration(ctx, consts.ChatUnreadTotalKey+userID,
			strconv.FormatInt(total, 10), consts.UnreadCacheTTL); err != nil {
			log.Warn("未读数缓存写入失败", "userID", userID, "err", err)
		}
	}
	return total, nil
}

// DeleteConversationForUser 摘除用户自己的会话引用；双方都已摘除时
// 复核后硬删会话与全部消息
func (s *chatServiceImpl) DeleteConversationForUser(ctx context.Context, convID, userID string) error {
	if !model.ValidUserID(userID) {
		return ErrParamInvalid
	}

	// 引用不存在也是静默成功
	if err := s.convRepo.HideForUser(ctx, convID, userID); err != nil {
		log.Error("摘除会话引用失败", "conversation", convID, "err", err)
		return UnExpectedError
	}

	deleted, err := s.convRepo.DeleteIfOrphaned(ctx, convID)
	if err != nil {
		log.Error("孤儿会话删除失败", "conversation", convID, "err", err)
		return UnExpectedError
	}

	topics := []string{hub.UserTopic(userID)}
	if deleted {
		// 消息清理尽力而为，残留由定时清理任务兜底
		purgeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.msgRepo.PurgeConversation(purgeCtx, convID); err != nil {
			log.Warn("消息清理失败，等待定时任务兜底", "conversation", convID, "err", err)
		}
		topics = append(topics, hub.ConvTopic(convID))
		if peerID, ok := model.PeerOf(convID, userID); ok {
			topics = append(topics, hub.UserTopic(peerID))
		}
	}
	s.bus.Publish(topics...)
	s.invalidateUnreadCache(userID)
	return nil
}

// RefreshUnreadCache 为持有活跃列表订阅的用户预热未读数缓存
func (s *chatServiceImpl) RefreshUnreadCache(ctx context.Context) {
	if !s.useCache {
		return
	}
	for _, topic := range s.hub.Topics() {
		userID, ok := hub.UserOfTopic(topic)
		if !ok {
			continue
		}
		total, err := s.computeUnreadTotal(ctx, userID)
		if err != nil {
			log.Warn("未读数预热失败", "userID", userID, "err", err)
			continue
		}
		if err := redis.SetWithExpiration(ctx, consts.ChatUnreadTotalKey+userID,
			strconv.FormatInt(total, 10), consts.UnreadCacheTTL); err != nil {
			log.Warn("未读数缓存写入失败", "userID", userID, "err", err)
		}
	}
}

func (s *chatServiceImpl) Close() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("ChatService shut down gracefully")
}

func (s *chatServiceImpl) computeUnreadTotal(ctx context.Context, userID string) (int64, error) {
	rows, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return 0, UnExpectedError
	}
	var total int64
	for _, r := range rows {
		n, err := s.msgRepo.CountUnread(ctx, r.ConversationID, userID)
		if err != nil {
			return 0, UnExpectedError
		}
		total += n
	}
	return total, nil
}

func (s *chatServiceImpl) notifyPeer(msg *model.Message, peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	peerRole := ""
	if members, err := s.convRepo.Members(ctx, msg.ConversationID); err == nil {
		for _, m := range members {
			if m.UserID == peerID {
				peerRole = m.Role
			}
		}
	}

	err := s.notifier.Notify(ctx, &notify.Notification{
		RecipientID:    peerID,
		RecipientRole:  peerRole,
		SenderName:     msg.SenderName,
		MessagePreview: truncateRunes(msg.Body, consts.PreviewMaxRunes),
		ConversationID: msg.ConversationID,
	})
	if err != nil {
		log.Warn("通知派发失败", "recipient", peerID, "err", err)
	}
}

func (s *chatServiceImpl) invalidateUnreadCache(userID string) {
	if !s.useCache {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := redis.DeleteKey(ctx, consts.ChatUnreadTotalKey+userID); err != nil {
		log.Warn("未读数缓存失效失败", "userID", userID, "err", err)
	}
}

// appendRetryWorker 明细写入失败的指数退避补偿
func (s *chatServiceImpl) appendRetryWorker() {
	defer s.wg.Done()
	for {
		select {
		case msg := <-s.retryChan:
			backoff := time.Second
			for i := 0; i < 3; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := s.msgRepo.Append(ctx, msg)
				cancel()
				if err == nil {
					s.bus.Publish(hub.ConvTopic(msg.ConversationID))
					break
				}
				time.Sleep(backoff)
				backoff *= 2
			}
		case <-s.stopChan:
			return
		}
	}
}

func (s *chatServiceImpl) toConversationDTO(ctx context.Context, conv *model.Conversation, viewerID string) (*dto.ConversationDTO, error) {
	members, err := s.convRepo.Members(ctx, conv.ID)
	if err != nil {
		return nil, UnExpectedError
	}
	unread, err := s.msgRepo.CountUnread(ctx, conv.ID, viewerID)
	if err != nil {
		return nil, UnExpectedError
	}

	d := &dto.ConversationDTO{
		ConversationID: conv.ID,
		LastMessage:    lastMessageDTO(conv),
		UnreadCount:    unread,
		CreatedAt:      conv.CreatedAt.UnixMilli(),
		UpdatedAt:      conv.UpdatedAt.UnixMilli(),
	}
	for _, m := range members {
		d.Participants = append(d.Participants, *toParticipantDTO(m))
		if m.UserID != viewerID {
			d.Peer = toParticipantDTO(m)
		}
	}
	return d, nil
}

func (s *chatServiceImpl) toMessageDTOs(msgs []*model.Message) []*dto.MessageDTO {
	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		var d dto.MessageDTO
		_ = copier.Copy(&d, m)
		res = append(res, &d)
	}
	return res
}

func toParticipantDTO(m *model.ConversationMember) *dto.ParticipantDTO {
	return &dto.ParticipantDTO{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Role:        m.Role,
	}
}

// lastMessageDTO 由会话行上的冗余字段还原最后一条消息，无消息时为 nil
func lastMessageDTO(conv *model.Conversation) *dto.MessageDTO {
	if conv.MaxMsgSeq == 0 {
		return nil
	}
	return &dto.MessageDTO{
		ID:             model.MessageID(conv.ID, conv.MaxMsgSeq),
		ConversationID: conv.ID,
		SenderID:       conv.LastSenderID,
		SenderName:     conv.LastSenderName,
		MsgType:        conv.LastMsgType,
		Body:           conv.LastMsgContent,
		Seq:            conv.MaxMsgSeq,
		Timestamp:      conv.LastMsgTS,
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
