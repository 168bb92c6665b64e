package hub

import (
	"strings"
	"sync"
)

// Publisher 变更扰动的发布口，服务层在每次成功写入后调用
type Publisher interface {
	Publish(topics ...string)
}

// UserTopic 用户会话列表主题
func UserTopic(userID string) string { return "user:" + userID }

// ConvTopic 单个会话的消息列表主题
func ConvTopic(convID string) string { return "conv:" + convID }

// UserOfTopic 从用户主题中还原用户 ID
func UserOfTopic(topic string) (string, bool) {
	return strings.CutPrefix(topic, "user:")
}

// Hub 进程内主题总线。信号只表示“该主题有变更”，订阅方自行重算快照，
// 因此信号可以合并，慢订阅者永远不会阻塞发布方。
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// Subscription 订阅句柄，Cancel 幂等
type Subscription struct {
	topic  string
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	h      *Hub
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic:  topic,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		h:      h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.done)
		return sub
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	return sub
}

// Publish 向各主题的所有订阅者投递一次扰动信号，信号已挂起时合并
func (h *Hub) Publish(topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, topic := range topics {
		for sub := range h.subs[topic] {
			select {
			case sub.signal <- struct{}{}:
			default:
			}
		}
	}
}

// Topics 当前有订阅者的主题列表
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := make([]string, 0, len(h.subs))
	for topic := range h.subs {
		res = append(res, topic)
	}
	return res
}

// Close 摘除全部订阅者，之后的 Subscribe 立即处于终止态
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.done) })
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
}

// Signal 扰动信号；收到后应重算并推送完整快照
func (s *Subscription) Signal() <-chan struct{} { return s.signal }

// Done 订阅终止信号
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel 注销订阅，多次调用安全
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.h.mu.Lock()
		defer s.h.mu.Unlock()
		if subs, ok := s.h.subs[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.h.subs, s.topic)
			}
		}
	})
}
