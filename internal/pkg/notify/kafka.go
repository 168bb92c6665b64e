package notify

import (
	"Sproutline/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// KafkaNotifier 把通知投到出站事件队列，由下游推送服务消费。
// 使用异步生产者，Notify 本身不等待 broker 确认
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
}

func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Return.Successes = false
	c.Producer.Return.Errors = true

	return c
}

func NewKafkaNotifier(cfg *config.Config) (*KafkaNotifier, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Kafka.Brokers, newSaramaConfig(cfg.Kafka))
	if err != nil {
		return nil, err
	}

	n := &KafkaNotifier{producer: producer, topic: cfg.Kafka.NotifyTopic}

	// 投递失败只记日志
	go func() {
		for err := range producer.Errors() {
			log.Error("通知投递 Kafka 失败", "topic", err.Msg.Topic, "err", err.Err)
		}
	}()

	return n, nil
}

func (s *KafkaNotifier) Notify(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(n.RecipientID),
		Value: sarama.ByteEncoder(data),
	}
	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *KafkaNotifier) Close() error {
	return s.producer.Close()
}
