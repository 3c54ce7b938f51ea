package smtp

import (
	"context"
	"errors"
	"io"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/mailparse"
	"mailarchive/backend/internal/monitoring"
)

// Ingester 接收完整的原始邮件并入库。
//
// 重复的传输 ID 不是错误，created 为 false。
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, env domain.Envelope) (*domain.Message, bool, error)
}

// 会话返回给客户端的 SMTP 错误
var (
	errTooManySessions = &gosmtp.SMTPError{
		Code:         421,
		EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
		Message:      "too many connections, try again later",
	}
	errBadSequence = &gosmtp.SMTPError{
		Code:         503,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "bad sequence of commands",
	}
	errInvalidSender = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
		Message:      "invalid sender address",
	}
	errInvalidRecipient = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
		Message:      "invalid recipient address",
	}
	errMessageTooLarge = &gosmtp.SMTPError{
		Code:         552,
		EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
		Message:      "message exceeds fixed maximum message size",
	}
	errUnparseable = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "message content could not be parsed",
	}
	errTemporaryFailure = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "temporary failure storing message, try again later",
	}
)

// BackendDeps Backend 依赖
type BackendDeps struct {
	Ingest          Ingester
	Limiter         *ConnectionLimiter  // 可选
	Logger          *zap.Logger         // 可选
	Metrics         *monitoring.Metrics // 可选
	MaxMessageBytes int64
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收、只归档的 SMTP 服务器：接受任何语法合法的收件人，
// 不做转发，不提供 AUTH。每个连接对应一个 session，会话之间只共享 Ingester。
type Backend struct {
	ingest          Ingester
	limiter         *ConnectionLimiter
	logger          *zap.Logger
	metrics         *monitoring.Metrics
	maxMessageBytes int64
}

// NewBackend 创建 SMTP Backend。
func NewBackend(deps BackendDeps) *Backend {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := deps.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &Backend{
		ingest:          deps.Ingest,
		limiter:         deps.Limiter,
		logger:          logger,
		metrics:         deps.Metrics,
		maxMessageBytes: maxBytes,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		b.metrics.SessionRejected()
		return nil, errTooManySessions
	}
	b.metrics.SessionOpened()

	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}

	return &session{
		backend: b,
		logger: b.logger.With(
			zap.String("session_id", uuid.New().String()),
			zap.String("remote", remote),
		),
		state: stateGreeted,
	}, nil
}

// sessionState 会话所处阶段
type sessionState int

const (
	stateGreeted sessionState = iota // 等待 MAIL，每封邮件结束后也回到这里
	stateSenderSet
	stateRecipientsSet
	stateDataStreaming
)

type session struct {
	backend *Backend
	logger  *zap.Logger

	state  sessionState
	from   string
	rcpts  []string
	closed bool
}

// Mail 处理 MAIL 命令；空的反向路径（<>）用于退信，允许。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	addr := domain.NormalizeAddress(from)
	if addr != "" {
		if err := domain.ValidateAddress(addr); err != nil {
			return errInvalidSender
		}
	}

	s.from = addr
	s.rcpts = nil
	s.state = stateSenderSet
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 归档服务器接受任何语法合法的地址，不检查目录；未登记的地址在入库时被忽略。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.state < stateSenderSet {
		return errBadSequence
	}

	addr := domain.NormalizeAddress(to)
	if err := domain.ValidateAddress(addr); err != nil {
		return errInvalidRecipient
	}

	for _, existing := range s.rcpts {
		if existing == addr {
			return nil
		}
	}
	s.rcpts = append(s.rcpts, addr)
	s.state = stateRecipientsSet
	return nil
}

// Data 读取邮件内容并交给 Ingester。
func (s *session) Data(r io.Reader) error {
	if s.state != stateRecipientsSet {
		return errBadSequence
	}
	s.state = stateDataStreaming
	start := time.Now()
	ctx := context.Background()

	raw, err := Collect(ctx, r, s.backend.maxMessageBytes)
	if err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			s.backend.metrics.ObserveIngest(monitoring.ResultTooLarge, 0, time.Since(start))
			s.logger.Warn("message rejected: too large",
				zap.String("from", s.from),
				zap.Int64("limit", s.backend.maxMessageBytes),
			)
			return errMessageTooLarge
		}
		s.backend.metrics.RecordError("transport", "smtp")
		s.logger.Warn("message transfer aborted", zap.Error(err))
		return err
	}

	env := domain.Envelope{
		MailFrom: s.from,
		RcptTo:   append([]string(nil), s.rcpts...),
	}

	msg, created, err := s.backend.ingest.Ingest(ctx, raw, env)
	if err != nil {
		var normErr *mailparse.NormalizationError
		if errors.As(err, &normErr) {
			s.backend.metrics.ObserveIngest(monitoring.ResultMalformed, len(raw), time.Since(start))
			s.logger.Info("message rejected: malformed",
				zap.String("from", s.from),
				zap.String("reason", normErr.Reason),
				zap.Error(err),
			)
			return errUnparseable
		}

		s.backend.metrics.ObserveIngest(monitoring.ResultFailed, len(raw), time.Since(start))
		s.logger.Error("failed to store message", zap.String("from", s.from), zap.Error(err))
		return errTemporaryFailure
	}

	result := monitoring.ResultStored
	if !created {
		result = monitoring.ResultDuplicate
	}
	s.backend.metrics.ObserveIngest(result, len(raw), time.Since(start))
	s.logger.Info("message accepted",
		zap.String("id", msg.ID),
		zap.String("message_id", msg.TransportID()),
		zap.Bool("duplicate", !created),
		zap.Int("rcpt_count", len(env.RcptTo)),
		zap.Int("recipients", len(msg.Recipients)),
		zap.Int("size", len(raw)),
	)
	return nil
}

// Reset 由 go-smtp 在每次 DATA 结束后和 RSET 时调用。
// 清空信封并回到已问候阶段，下一封邮件需要重新 MAIL 才进入 stateSenderSet。
func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
	s.state = stateGreeted
}

// Logout 会话结束，释放连接许可。
func (s *session) Logout() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	s.backend.metrics.SessionClosed()
	return nil
}
