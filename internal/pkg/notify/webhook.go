package notify

import (
	"Sproutline/internal/api/config"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier 直连推送服务的 HTTP 通道，超时与重试预算都在这里，
// 不外溢给调用方
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond)

	return &WebhookNotifier{client: client, url: cfg.WebhookURL}
}

func (s *WebhookNotifier) Notify(ctx context.Context, n *Notification) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook status %d", resp.StatusCode())
	}
	return nil
}

func (s *WebhookNotifier) Close() error { return nil }
