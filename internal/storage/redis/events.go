package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"mailarchive/backend/internal/domain"
)

// DefaultChannel 默认通知频道
const DefaultChannel = "mailarchive:messages"

// StoredEvent 新邮件入库事件
type StoredEvent struct {
	ID                 string   `json:"id"`
	TransportMessageID string   `json:"transportMessageId,omitempty"`
	Recipients         []string `json:"recipients"`
	IsSent             bool     `json:"isSent"`
}

// publisher go-redis 客户端的发布子集
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// EventPublisher 把入库事件以 JSON 发布到频道
type EventPublisher struct {
	pub     publisher
	channel string
}

// NewEventPublisher 创建事件发布器；channel 为空时使用 DefaultChannel
func NewEventPublisher(client *Client, channel string) *EventPublisher {
	return newEventPublisher(client.rdb, channel)
}

func newEventPublisher(pub publisher, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &EventPublisher{pub: pub, channel: channel}
}

// PublishStored 发布一条入库事件；没有订阅者不算错误
func (p *EventPublisher) PublishStored(ctx context.Context, message *domain.Message) error {
	recipients := message.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	payload, err := json.Marshal(StoredEvent{
		ID:                 message.ID,
		TransportMessageID: message.TransportID(),
		Recipients:         recipients,
		IsSent:             message.IsSent,
	})
	if err != nil {
		return fmt.Errorf("marshal stored event: %w", err)
	}

	if err := p.pub.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
