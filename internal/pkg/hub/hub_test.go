package hub

import (
	"testing"
	"time"
)

func TestPublishSignalsSubscribers(t *testing.T) {
	h := New()
	sub := h.Subscribe(UserTopic("alice"))
	defer sub.Cancel()

	h.Publish(UserTopic("alice"))
	select {
	case <-sub.Signal():
	case <-time.After(time.Second):
		t.Fatal("expected a signal")
	}

	// 其他主题的扰动不应投递过来
	h.Publish(UserTopic("bob"))
	select {
	case <-sub.Signal():
		t.Fatal("unexpected signal for foreign topic")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishCoalesces(t *testing.T) {
	h := New()
	sub := h.Subscribe(ConvTopic("alice|bob"))
	defer sub.Cancel()

	// 未消费时连发多次只保留一个挂起信号，发布方不阻塞
	for i := 0; i < 10; i++ {
		h.Publish(ConvTopic("alice|bob"))
	}

	<-sub.Signal()
	select {
	case <-sub.Signal():
		t.Fatal("signals should coalesce into one")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCancelIdempotent(t *testing.T) {
	h := New()
	sub := h.Subscribe(UserTopic("alice"))

	sub.Cancel()
	sub.Cancel() // 再次调用不报错

	select {
	case <-sub.Done():
	default:
		t.Fatal("done should be closed after cancel")
	}

	h.Publish(UserTopic("alice"))
	select {
	case <-sub.Signal():
		t.Fatal("cancelled subscription must not receive signals")
	case <-time.After(20 * time.Millisecond):
	}

	if got := len(h.Topics()); got != 0 {
		t.Fatalf("topic should be released, still %d", got)
	}
}

func TestCloseDetachesAll(t *testing.T) {
	h := New()
	a := h.Subscribe(UserTopic("alice"))
	b := h.Subscribe(UserTopic("bob"))

	h.Close()
	<-a.Done()
	<-b.Done()

	// 关闭后的订阅立即处于终止态
	c := h.Subscribe(UserTopic("carol"))
	select {
	case <-c.Done():
	default:
		t.Fatal("subscribe after close should be terminated")
	}
}
