package service

import (
	"Sproutline/internal/api/dto"
	"Sproutline/internal/model"
	"Sproutline/internal/pkg/hub"
	"Sproutline/internal/pkg/notify"
	"Sproutline/internal/repository/memory"
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestService(t *testing.T) (ChatService, *hub.Hub) {
	t.Helper()
	h := hub.New()
	svc := NewChatService(
		memory.NewConversationRepo(),
		memory.NewMessageRepo(),
		h, h, notify.NoopNotifier{}, false,
	)
	t.Cleanup(func() {
		svc.Close()
		h.Close()
	})
	return svc, h
}

var (
	alice = model.Participant{UserID: "alice", DisplayName: "Alice Lee", Role: "parent"}
	bob   = model.Participant{UserID: "bob", DisplayName: "Bob Wang", Role: "staff"}
)

func TestCreateOrGetConversationIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c1, err := svc.CreateOrGetConversation(ctx, alice, bob)
	if err != nil {
		t.Fatalf("首次创建失败: %v", err)
	}
	c2, err := svc.CreateOrGetConversation(ctx, bob, alice)
	if err != nil {
		t.Fatalf("反向创建失败: %v", err)
	}
	if c1.ConversationID != c2.ConversationID {
		t.Fatalf("双向创建未收敛: %s != %s", c1.ConversationID, c2.ConversationID)
	}
	if c1.LastMessage != nil {
		t.Fatalf("新会话不应有最后消息")
	}
	if c2.Peer == nil || c2.Peer.UserID != alice.UserID {
		t.Fatalf("bob 视角的对方应为 alice")
	}
}

func TestCreateOrGetConversationConcurrent(t *testing.T) {
	svc, _ := newTestService(t)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			self, target := alice, bob
			if i%2 == 1 {
				self, target = bob, alice
			}
			c, err := svc.CreateOrGetConversation(context.Background(), self, target)
			if err != nil {
				t.Errorf("并发创建失败: %v", err)
				return
			}
			ids[i] = c.ConversationID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("并发创建未收敛到同一会话: %v", ids)
		}
	}
}

func TestCreateOrGetConversationValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateOrGetConversation(ctx, alice, alice); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("自聊应被拒绝, got %v", err)
	}
	bad := model.Participant{UserID: "a|b", DisplayName: "x", Role: "parent"}
	if _, err := svc.CreateOrGetConversation(ctx, alice, bad); !errors.Is(err, ErrParamInvalid) {
		t.Fatalf("含分隔符的 ID 应被拒绝, got %v", err)
	}
	empty := model.Participant{}
	if _, err := svc.CreateOrGetConversation(ctx, empty, bob); !errors.Is(err, ErrParamInvalid) {
		t.Fatalf("空 ID 应被拒绝, got %v", err)
	}
}

func TestSendAndListMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}

	bodies := []string{"hi", "there", "bob"}
	var lastID string
	for _, body := range bodies {
		resp, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
			ConversationID: conv.ConversationID,
			Body:           body,
		})
		if err != nil {
			t.Fatalf("发送 %q 失败: %v", body, err)
		}
		if resp.MessageID <= lastID {
			t.Fatalf("消息 ID 未保持字典序递增: %s <= %s", resp.MessageID, lastID)
		}
		lastID = resp.MessageID
	}

	msgs, err := svc.ListMessages(ctx, conv.ConversationID, bob.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("期望 3 条消息, got %d", len(msgs))
	}
	for i, body := range bodies {
		if msgs[i].Body != body {
			t.Fatalf("第 %d 条消息乱序: %q", i, msgs[i].Body)
		}
		if msgs[i].MsgType != "text" {
			t.Fatalf("缺省消息类型应为 text, got %q", msgs[i].MsgType)
		}
		if i > 0 && msgs[i].Timestamp <= msgs[i-1].Timestamp {
			t.Fatalf("会话内时间戳未严格递增")
		}
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.CreateOrGetConversation(ctx, alice, bob)

	if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "   ",
	}); !errors.Is(err, ErrBodyEmpty) {
		t.Fatalf("空白正文应被拒绝, got %v", err)
	}

	if _, err := svc.SendMessage(ctx, "mallory", "Mallory", &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "hi",
	}); !errors.Is(err, ErrNotMember) {
		t.Fatalf("非成员发送应被拒绝, got %v", err)
	}

	if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
		ConversationID: model.ConversationKey("alice", "nobody"), Body: "hi",
	}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("不存在的会话应报 not found, got %v", err)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.CreateOrGetConversation(ctx, alice, bob)
	for _, body := range []string{"hi", "there", "bob"} {
		if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
			ConversationID: conv.ConversationID, Body: body,
		}); err != nil {
			t.Fatal(err)
		}
	}

	total, err := svc.GetUnreadTotal(ctx, bob.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("bob 未读应为 3, got %d", total)
	}
	// 发送方自己不计未读
	if total, _ := svc.GetUnreadTotal(ctx, alice.UserID); total != 0 {
		t.Fatalf("alice 未读应为 0, got %d", total)
	}

	if err := svc.MarkConversationRead(ctx, conv.ConversationID, bob.UserID); err != nil {
		t.Fatal(err)
	}
	if total, _ := svc.GetUnreadTotal(ctx, bob.UserID); total != 0 {
		t.Fatalf("置读后未读应为 0, got %d", total)
	}
	// 幂等
	if err := svc.MarkConversationRead(ctx, conv.ConversationID, bob.UserID); err != nil {
		t.Fatalf("重复置读应为 no-op, got %v", err)
	}

	if err := svc.MarkConversationRead(ctx, model.ConversationKey("alice", "nobody"), alice.UserID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("不存在的会话置读应报 not found, got %v", err)
	}
}

func TestConversationListOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	carol := model.Participant{UserID: "carol", DisplayName: "Carol", Role: "parent"}

	c1, _ := svc.CreateOrGetConversation(ctx, alice, bob)
	c2, _ := svc.CreateOrGetConversation(ctx, alice, carol)

	// 只有 bob 的会话有消息，应排在前面；无消息的排最后
	if _, err := svc.SendMessage(ctx, bob.UserID, bob.DisplayName, &dto.SendMessageReq{
		ConversationID: c1.ConversationID, Body: "welcome",
	}); err != nil {
		t.Fatal(err)
	}

	list, err := svc.GetConversationList(ctx, alice.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("期望 2 个会话, got %d", len(list))
	}
	if list[0].ConversationID != c1.ConversationID || list[1].ConversationID != c2.ConversationID {
		t.Fatalf("会话列表排序错误: %s, %s", list[0].ConversationID, list[1].ConversationID)
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Body != "welcome" {
		t.Fatalf("最后消息预览缺失")
	}
	if list[0].UnreadCount != 1 {
		t.Fatalf("alice 在该会话的未读应为 1, got %d", list[0].UnreadCount)
	}
	if list[1].LastMessage != nil {
		t.Fatalf("无消息会话的最后消息应为 null")
	}
	if list[0].Peer == nil || list[0].Peer.DisplayName != bob.DisplayName {
		t.Fatalf("对方快照缺失")
	}
}

func TestDeleteLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.CreateOrGetConversation(ctx, alice, bob)
	if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "hi",
	}); err != nil {
		t.Fatal(err)
	}

	// alice 删除后自己的列表清空，bob 仍保留，消息也还在
	if err := svc.DeleteConversationForUser(ctx, conv.ConversationID, alice.UserID); err != nil {
		t.Fatal(err)
	}
	if list, _ := svc.GetConversationList(ctx, alice.UserID); len(list) != 0 {
		t.Fatalf("alice 删除后列表应为空, got %d", len(list))
	}
	if list, _ := svc.GetConversationList(ctx, bob.UserID); len(list) != 1 {
		t.Fatalf("bob 的列表不应受影响, got %d", len(list))
	}
	if msgs, _ := svc.ListMessages(ctx, conv.ConversationID, bob.UserID); len(msgs) != 1 {
		t.Fatalf("单方删除不应清除消息")
	}

	// bob 也删除后会话与消息被硬删
	if err := svc.DeleteConversationForUser(ctx, conv.ConversationID, bob.UserID); err != nil {
		t.Fatal(err)
	}
	if msgs, _ := svc.ListMessages(ctx, conv.ConversationID, bob.UserID); len(msgs) != 0 {
		t.Fatalf("双方删除后消息应被清除, got %d", len(msgs))
	}

	// 删除后重新联系从零开始
	again, err := svc.CreateOrGetConversation(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}
	if again.ConversationID != conv.ConversationID {
		t.Fatalf("重建会话 ID 应一致")
	}
	if again.LastMessage != nil || again.UnreadCount != 0 {
		t.Fatalf("重建的会话应为空")
	}
}

func TestDeleteIdempotentAndResurrect(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.CreateOrGetConversation(ctx, alice, bob)

	// 重复删除静默成功，不存在的会话同样静默
	if err := svc.DeleteConversationForUser(ctx, conv.ConversationID, alice.UserID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteConversationForUser(ctx, conv.ConversationID, alice.UserID); err != nil {
		t.Fatalf("重复删除应为静默 no-op, got %v", err)
	}
	if err := svc.DeleteConversationForUser(ctx, model.ConversationKey("x", "y"), alice.UserID); err != nil {
		t.Fatalf("删除不存在的会话应为静默 no-op, got %v", err)
	}

	// 对方来新消息时会话重新浮现在 alice 的列表里
	if _, err := svc.SendMessage(ctx, bob.UserID, bob.DisplayName, &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "are you there?",
	}); err != nil {
		t.Fatal(err)
	}
	list, err := svc.GetConversationList(ctx, alice.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("新消息应让会话重新浮现, got %d", len(list))
	}
	if list[0].UnreadCount != 1 {
		t.Fatalf("浮现会话应带 1 条未读, got %d", list[0].UnreadCount)
	}
}
