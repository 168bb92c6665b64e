package service

import (
	"Sproutline/internal/api/dto"
	"context"
	"testing"
	"time"
)

func waitSnapshot[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("等待快照超时")
		return nil
	}
}

func TestSubscribeMessagesBeforeFirstMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.CreateOrGetConversation(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}

	snaps := make(chan []*dto.MessageDTO, 8)
	cancel := svc.SubscribeMessages(conv.ConversationID, func(msgs []*dto.MessageDTO) {
		snaps <- msgs
	})
	defer cancel()

	// 订阅先行：初始快照为空
	if snap := waitSnapshot(t, snaps); len(snap) != 0 {
		t.Fatalf("初始快照应为空, got %d", len(snap))
	}

	if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "hello",
	}); err != nil {
		t.Fatal(err)
	}

	snap := waitSnapshot(t, snaps)
	if len(snap) != 1 || snap[0].Body != "hello" {
		t.Fatalf("新消息应触发完整快照推送, got %+v", snap)
	}
}

func TestSubscribeMessagesUnknownConversation(t *testing.T) {
	svc, _ := newTestService(t)

	snaps := make(chan []*dto.MessageDTO, 1)
	cancel := svc.SubscribeMessages("ghost|nobody", func(msgs []*dto.MessageDTO) {
		snaps <- msgs
	})
	defer cancel()

	if snap := waitSnapshot(t, snaps); len(snap) != 0 {
		t.Fatalf("不存在的会话订阅应推空快照, got %d", len(snap))
	}
}

func TestSubscribeConversations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	snaps := make(chan []*dto.ConversationDTO, 8)
	cancel := svc.SubscribeConversations(bob.UserID, func(list []*dto.ConversationDTO) {
		snaps <- list
	})
	defer cancel()

	if snap := waitSnapshot(t, snaps); len(snap) != 0 {
		t.Fatalf("初始列表应为空, got %d", len(snap))
	}

	conv, err := svc.CreateOrGetConversation(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}
	if snap := waitSnapshot(t, snaps); len(snap) != 1 {
		t.Fatalf("建会话后列表应含 1 项, got %d", len(snap))
	}

	if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "pickup at 5?",
	}); err != nil {
		t.Fatal(err)
	}

	// 信号可能被合并，逐个快照推进直到观察到未读
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if len(snap) == 1 && snap[0].UnreadCount == 1 &&
				snap[0].LastMessage != nil && snap[0].LastMessage.Body == "pickup at 5?" {
				return
			}
		case <-deadline:
			t.Fatal("未观察到带未读数的列表快照")
		}
	}
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.CreateOrGetConversation(ctx, alice, bob)

	snaps := make(chan []*dto.MessageDTO, 8)
	cancel := svc.SubscribeMessages(conv.ConversationID, func(msgs []*dto.MessageDTO) {
		snaps <- msgs
	})
	waitSnapshot(t, snaps)

	cancel()
	cancel() // 幂等

	if _, err := svc.SendMessage(ctx, alice.UserID, alice.DisplayName, &dto.SendMessageReq{
		ConversationID: conv.ConversationID, Body: "after cancel",
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-snaps:
		t.Fatalf("取消后不应再有回调, got %d 条", len(snap))
	case <-time.After(200 * time.Millisecond):
	}
}
