package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/mailparse"
	"mailarchive/backend/internal/monitoring"
	"mailarchive/backend/internal/storage"
)

// RawArchive 原始报文归档（可选）
type RawArchive interface {
	SaveRaw(ctx context.Context, messageID string, raw []byte) error
}

// EventPublisher 新邮件入库通知（可选）
type EventPublisher interface {
	PublishStored(ctx context.Context, message *domain.Message) error
}

// IngestDeps IngestService 依赖
type IngestDeps struct {
	Messages storage.MessageRepository
	Resolver *RecipientResolver
	Archive  RawArchive          // 可选
	Events   EventPublisher      // 可选
	Metrics  *monitoring.Metrics // 可选
	Logger   *zap.Logger         // 可选
}

// IngestService 入站邮件处理：解析、合并信封、解析收件人、入库。
type IngestService struct {
	messages storage.MessageRepository
	resolver *RecipientResolver
	archive  RawArchive
	events   EventPublisher
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewIngestService 创建入站服务。
func NewIngestService(deps IngestDeps) *IngestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		messages: deps.Messages,
		resolver: deps.Resolver,
		archive:  deps.Archive,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   logger.Named("ingest"),
	}
}

// Ingest 处理一封完整的原始邮件。
//
// 解析失败返回 *mailparse.NormalizationError；传输 ID 已存在时返回已有记录，created 为 false。
// 入库成功后的原文归档和事件通知失败只记录日志。
func (s *IngestService) Ingest(ctx context.Context, raw []byte, env domain.Envelope) (*domain.Message, bool, error) {
	msg, err := mailparse.Parse(raw)
	if err != nil {
		return nil, false, err
	}

	mergeEnvelope(msg, env)

	// 合并后的 To 已包含全部 RCPT TO 地址
	recipients, err := s.resolver.Resolve(ctx, msg.To.Addresses())
	if err != nil {
		return nil, false, err
	}
	msg.Recipients = recipients

	stored, created, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, false, fmt.Errorf("store message: %w", err)
	}
	if !created {
		return stored, false, nil
	}

	for _, att := range stored.Attachments {
		s.metrics.ObserveAttachment(att.Size)
	}
	s.afterStore(ctx, stored, raw)
	return stored, true, nil
}

func (s *IngestService) afterStore(ctx context.Context, msg *domain.Message, raw []byte) {
	if s.archive != nil {
		if err := s.archive.SaveRaw(ctx, msg.ID, raw); err != nil {
			s.metrics.RecordError("archive", "ingest")
			s.logger.Warn("failed to archive raw message", zap.String("id", msg.ID), zap.Error(err))
		}
	}

	if s.events != nil {
		start := time.Now()
		err := s.events.PublishStored(ctx, msg)
		s.metrics.ObserveEvent(err == nil)
		if err != nil {
			s.logger.Warn("failed to publish message event",
				zap.String("id", msg.ID),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
	}
}

// mergeEnvelope 合并协议信封：RCPT TO 中不在 To 头里的地址追加到 To；缺少 From 头时用 MAIL FROM。
func mergeEnvelope(msg *domain.Message, env domain.Envelope) {
	msg.SMTPMailFrom = env.MailFrom
	msg.SMTPRcptTo = append([]string{}, env.RcptTo...)

	headerHadTo := len(msg.To.Value) > 0 || msg.To.Text != ""
	for _, rcpt := range env.RcptTo {
		if rcpt == "" || msg.To.Contains(rcpt) {
			continue
		}
		msg.To.Value = append(msg.To.Value, domain.Address{Address: rcpt})
	}
	if !headerHadTo && len(env.RcptTo) > 0 {
		msg.To.Text = strings.Join(env.RcptTo, ", ")
	}

	if len(msg.From.Value) == 0 && env.MailFrom != "" {
		msg.From.Value = []domain.Address{{Address: env.MailFrom}}
		if msg.From.Text == "" {
			msg.From.Text = env.MailFrom
		}
	}
}
