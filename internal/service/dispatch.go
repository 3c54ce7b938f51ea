package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/mailparse"
	"mailarchive/backend/internal/monitoring"
	"mailarchive/backend/internal/relay"
	"mailarchive/backend/internal/storage"
)

// OutboundRequest 外发请求
type OutboundRequest struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// ValidationError 外发请求不合法
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DispatchDeps DispatchService 依赖
type DispatchDeps struct {
	Relay    relay.Relay
	Messages storage.MessageRepository
	Resolver *RecipientResolver
	Metrics  *monitoring.Metrics // 可选
	Logger   *zap.Logger         // 可选
}

// DispatchService 通过中继发送邮件，并把已发送副本写入归档。
type DispatchService struct {
	relay    relay.Relay
	messages storage.MessageRepository
	resolver *RecipientResolver
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatchService 创建外发服务。
func NewDispatchService(deps DispatchDeps) *DispatchService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchService{
		relay:    deps.Relay,
		messages: deps.Messages,
		resolver: deps.Resolver,
		metrics:  deps.Metrics,
		logger:   logger.Named("dispatch"),
		now:      time.Now,
	}
}

// Send 校验、组装并投递一封邮件。
//
// 中继失败返回 *relay.RelayError，此时不写入任何记录；不做重试。
// 投递成功后写入 IsSent 为 true 的归档记录，收件人只取 To 中属于目录的用户。
func (s *DispatchService) Send(ctx context.Context, sender domain.Sender, req OutboundRequest) (*domain.Message, error) {
	to, err := validateOutbound(sender, req)
	if err != nil {
		s.metrics.ObserveSend(monitoring.ResultInvalid)
		return nil, err
	}

	env, err := relay.Compose(relay.Mail{
		From:    domain.Address{Address: domain.NormalizeAddress(sender.Address), Name: sender.Name},
		To:      to,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
		Date:    s.now(),
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	transportID, err := s.relay.Submit(ctx, env)
	s.metrics.ObserveRelay(s.relay.Name(), time.Since(start))
	if err != nil {
		s.metrics.ObserveSend(monitoring.ResultRelayFailed)
		var relayErr *relay.RelayError
		if !errors.As(err, &relayErr) {
			err = &relay.RelayError{Provider: s.relay.Name(), Err: err}
		}
		s.logger.Warn("relay rejected message",
			zap.String("provider", s.relay.Name()),
			zap.String("to", to.Address),
			zap.Error(err),
		)
		return nil, err
	}

	// 已发送副本与实际投递的报文一致
	msg, err := mailparse.Parse(env.Data)
	if err != nil {
		return nil, fmt.Errorf("parse composed message: %w", err)
	}
	msg.IsSent = true
	msg.SetTransportID(transportID)
	msg.SMTPMailFrom = env.From
	msg.SMTPRcptTo = append([]string{}, env.To...)

	// 与入站相同，只按 To 解析；发件人本人不计入收件人
	recipients, err := s.resolver.Resolve(ctx, msg.To.Addresses())
	if err != nil {
		return nil, err
	}
	msg.Recipients = recipients

	stored, _, err := s.messages.Create(ctx, msg)
	if err != nil {
		s.metrics.RecordError("storage", "dispatch")
		s.logger.Error("message sent but not archived",
			zap.String("transport_id", transportID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("store sent message: %w", err)
	}

	s.metrics.ObserveSend(monitoring.ResultSent)
	s.logger.Info("message sent",
		zap.String("id", stored.ID),
		zap.String("provider", s.relay.Name()),
		zap.String("transport_id", transportID),
		zap.Int("recipients", len(stored.Recipients)),
	)
	return stored, nil
}

func validateOutbound(sender domain.Sender, req OutboundRequest) (domain.Address, error) {
	if err := domain.ValidateAddress(domain.NormalizeAddress(sender.Address)); err != nil {
		return domain.Address{}, &ValidationError{Field: "from", Message: err.Error()}
	}

	rawTo := strings.TrimSpace(req.To)
	if rawTo == "" {
		return domain.Address{}, &ValidationError{Field: "to", Message: "recipient is required"}
	}
	parsed, err := mail.ParseAddress(rawTo)
	if err != nil {
		return domain.Address{}, &ValidationError{Field: "to", Message: "must be a single email address"}
	}
	to := domain.Address{Address: strings.ToLower(parsed.Address), Name: parsed.Name}
	if err := domain.ValidateAddress(to.Address); err != nil {
		return domain.Address{}, &ValidationError{Field: "to", Message: err.Error()}
	}

	if strings.TrimSpace(req.Subject) == "" {
		return domain.Address{}, &ValidationError{Field: "subject", Message: "subject is required"}
	}
	if err := domain.ValidateSubject(req.Subject); err != nil {
		return domain.Address{}, &ValidationError{Field: "subject", Message: err.Error()}
	}

	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.HTML) == "" {
		return domain.Address{}, &ValidationError{Field: "body", Message: "text or html body is required"}
	}
	return to, nil
}
