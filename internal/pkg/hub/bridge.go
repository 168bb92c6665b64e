package hub

import (
	"context"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge 将本地扰动镜像到 Redis 频道，并把其他实例的扰动回注本地 Hub，
// 多实例部署时各实例的订阅者都能重算
type Bridge struct {
	hub        *Hub
	rdb        *redis.Client
	channel    string
	instanceID string
}

type bridgeEvent struct {
	Origin string   `json:"origin"`
	Topics []string `json:"topics"`
}

func NewBridge(h *Hub, rdb *redis.Client, channel string) *Bridge {
	return &Bridge{
		hub:        h,
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.New().String(),
	}
}

// Publish 本地立即生效，跨实例镜像尽力而为
func (b *Bridge) Publish(topics ...string) {
	b.hub.Publish(topics...)

	data, err := json.Marshal(&bridgeEvent{Origin: b.instanceID, Topics: topics})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		log.Warn("事件镜像到 Redis 失败", "err", err)
	}
}

// Run 订阅镜像频道直到 ctx 结束
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	log.Info("事件桥已启动", "channel", b.channel, "instance", b.instanceID)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt bridgeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Warn("事件桥收到无法解析的负载", "err", err)
				continue
			}
			// 自己发出的事件本地已生效，跳过
			if evt.Origin == b.instanceID {
				continue
			}
			b.hub.Publish(evt.Topics...)
		case <-ctx.Done():
			return nil
		}
	}
}
