// Package smtprelay 通过上游 SMTP 服务器投递外发邮件。
package smtprelay

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"mailarchive/backend/internal/relay"
)

// Config 上游 SMTP 配置
type Config struct {
	Host               string
	Port               int
	TLS                bool // 隐式 TLS（465）
	StartTLS           bool // 明文连接后升级（587）
	Username           string
	Password           string
	HELO               string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client 基于 go-smtp 客户端的中继
type Client struct {
	cfg Config
}

var _ relay.Relay = (*Client)(nil)

// New 创建 SMTP 中继
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg}
}

// Name 返回中继名称
func (c *Client) Name() string {
	return "smtp"
}

// Submit 建立连接并投递一次；上游不返回队列 ID，传输 ID 使用报文的 Message-ID。
func (c *Client) Submit(ctx context.Context, env *relay.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", c.wrap(err)
	}

	client, stop, err := c.dial(ctx)
	if err != nil {
		return "", c.wrap(contextCause(ctx, err))
	}
	defer client.Close()
	defer stop()

	client.CommandTimeout = c.cfg.Timeout
	client.SubmissionTimeout = c.cfg.Timeout

	// STARTTLS 连接在升级前已完成 EHLO，不能再指定 HELO 名称
	if c.cfg.HELO != "" && !c.cfg.StartTLS {
		if err := client.Hello(c.cfg.HELO); err != nil {
			return "", c.wrap(contextCause(ctx, err))
		}
	}

	if c.cfg.Username != "" {
		auth := sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return "", c.wrap(contextCause(ctx, fmt.Errorf("auth: %w", err)))
		}
	}

	if err := client.SendMail(env.From, env.To, bytes.NewReader(env.Data)); err != nil {
		return "", c.wrap(contextCause(ctx, err))
	}

	// 邮件已被接受，QUIT 失败不影响结果
	_ = client.Quit()
	return env.MessageID, nil
}

// dial 建立连接（含 TLS 握手和 STARTTLS 升级），整个过程受 ctx 和 Timeout 约束。
// ctx 结束时关闭连接以中断阻塞的读写；返回的 stop 解除该绑定。
func (c *Client) dial(ctx context.Context) (*gosmtp.Client, func() bool, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.InsecureSkipVerify,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	// 握手阶段超时也要能打断阻塞的读
	stopHandshake := context.AfterFunc(dialCtx, func() { _ = conn.Close() })

	var client *gosmtp.Client
	switch {
	case c.cfg.TLS:
		tlsConn := tls.Client(conn, tlsConfig)
		if err = tlsConn.HandshakeContext(dialCtx); err == nil {
			client = gosmtp.NewClient(tlsConn)
		}
	case c.cfg.StartTLS:
		client, err = gosmtp.NewClientStartTLS(conn, tlsConfig)
	default:
		client = gosmtp.NewClient(conn)
	}

	if !stopHandshake() || err != nil {
		_ = conn.Close()
		if err == nil {
			err = dialCtx.Err()
		}
		return nil, nil, contextCause(dialCtx, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	return client, stop, nil
}

// contextCause ctx 已结束时，用 ctx 的错误替换连接被关闭产生的网络错误
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (c *Client) wrap(err error) error {
	return &relay.RelayError{
		Provider:  c.Name(),
		Temporary: isTemporary(err),
		Err:       err,
	}
}

// isTemporary 4xx 响应、网络错误和超时视为暂时失败
func isTemporary(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code >= 400 && smtpErr.Code < 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
