package memory

import (
	"Sproutline/internal/model"
	"context"
	"testing"
	"time"

	"Sproutline/internal/repository"
)

func newConv(a, b string) (*model.Conversation, []*model.ConversationMember) {
	id := model.ConversationKey(a, b)
	conv := &model.Conversation{ID: id, LastMsgType: "text"}
	members := []*model.ConversationMember{
		{UserID: a, DisplayName: a, Role: "parent", IsVisible: 1},
		{UserID: b, DisplayName: b, Role: "staff", IsVisible: 1},
	}
	return conv, members
}

func TestCreateOrGetIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo()

	conv, members := newConv("alice", "bob")
	first, created, err := repo.CreateOrGet(ctx, conv, members)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	conv2, members2 := newConv("bob", "alice")
	second, created, err := repo.CreateOrGet(ctx, conv2, members2)
	if err != nil || created {
		t.Fatalf("second create: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids diverged: %q vs %q", first.ID, second.ID)
	}
}

func TestNextSeqClampsClock(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo()
	conv, members := newConv("alice", "bob")
	if _, _, err := repo.CreateOrGet(ctx, conv, members); err != nil {
		t.Fatal(err)
	}

	seq1, ts1, err := repo.NextSeq(ctx, conv.ID, "hi", "text", "alice", "Alice", 1000)
	if err != nil || seq1 != 1 || ts1 != 1000 {
		t.Fatalf("first append: seq=%d ts=%d err=%v", seq1, ts1, err)
	}

	// 时钟回拨：钳制到上一条 +1
	seq2, ts2, err := repo.NextSeq(ctx, conv.ID, "there", "text", "alice", "Alice", 999)
	if err != nil || seq2 != 2 {
		t.Fatalf("second append: seq=%d err=%v", seq2, err)
	}
	if ts2 != 1001 {
		t.Fatalf("expected clamped ts 1001, got %d", ts2)
	}

	if _, _, err = repo.NextSeq(ctx, "missing|pair", "x", "text", "a", "A", 1); err != repository.ErrConversationMissing {
		t.Fatalf("expected ErrConversationMissing, got %v", err)
	}
}

func TestNextSeqRestoresVisibility(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo()
	conv, members := newConv("alice", "bob")
	if _, _, err := repo.CreateOrGet(ctx, conv, members); err != nil {
		t.Fatal(err)
	}

	if err := repo.HideForUser(ctx, conv.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	list, _ := repo.ListForUser(ctx, "alice")
	if len(list) != 0 {
		t.Fatalf("hidden conversation still listed: %d", len(list))
	}

	if _, _, err := repo.NextSeq(ctx, conv.ID, "hi", "text", "bob", "Bob", time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}
	list, _ = repo.ListForUser(ctx, "alice")
	if len(list) != 1 {
		t.Fatalf("new message should restore visibility, got %d rows", len(list))
	}
}

func TestDeleteIfOrphaned(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo()
	conv, members := newConv("alice", "bob")
	if _, _, err := repo.CreateOrGet(ctx, conv, members); err != nil {
		t.Fatal(err)
	}

	if err := repo.HideForUser(ctx, conv.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	deleted, err := repo.DeleteIfOrphaned(ctx, conv.ID)
	if err != nil || deleted {
		t.Fatalf("one side still retains, deleted=%v err=%v", deleted, err)
	}

	if err = repo.HideForUser(ctx, conv.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	deleted, err = repo.DeleteIfOrphaned(ctx, conv.ID)
	if err != nil || !deleted {
		t.Fatalf("expected hard delete, deleted=%v err=%v", deleted, err)
	}
	if _, err = repo.Get(ctx, conv.ID); err != repository.ErrConversationMissing {
		t.Fatalf("conversation should be gone, got %v", err)
	}
}

func TestMessageRepoOrderingAndReadState(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo()
	convID := model.ConversationKey("alice", "bob")

	for i, body := range []string{"hi", "there", "bob"} {
		msg := &model.Message{
			ID:             model.MessageID(convID, uint64(i+1)),
			ConversationID: convID,
			SenderID:       "alice",
			SenderName:     "Alice",
			MsgType:        "text",
			Body:           body,
			Seq:            uint64(i + 1),
			Timestamp:      int64(1000 + i),
		}
		if err := repo.Append(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := repo.List(ctx, convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Fatalf("timestamps decreased at %d", i)
		}
	}

	n, err := repo.CountUnread(ctx, convID, "bob")
	if err != nil || n != 3 {
		t.Fatalf("unread for bob = %d, err=%v", n, err)
	}
	n, _ = repo.CountUnread(ctx, convID, "alice")
	if n != 0 {
		t.Fatalf("sender must not count own messages, got %d", n)
	}

	changed, err := repo.MarkAllRead(ctx, convID, "bob")
	if err != nil || changed != 3 {
		t.Fatalf("mark read changed=%d err=%v", changed, err)
	}
	// 幂等：再标一次没有可改的
	changed, _ = repo.MarkAllRead(ctx, convID, "bob")
	if changed != 0 {
		t.Fatalf("second mark should be a no-op, changed=%d", changed)
	}
	n, _ = repo.CountUnread(ctx, convID, "bob")
	if n != 0 {
		t.Fatalf("unread after mark = %d", n)
	}
}
