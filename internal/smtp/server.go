package smtp

import (
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPConfig 入站监听配置
type SMTPConfig struct {
	Addr            string
	Domain          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	MaxRecipients   int
}

// NewServer 创建已配置的 go-smtp 服务器；不启用 TLS，不提供 AUTH。
func NewServer(cfg SMTPConfig, backend *Backend) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.Addr
	server.Domain = cfg.Domain
	server.ReadTimeout = cfg.ReadTimeout
	server.WriteTimeout = cfg.WriteTimeout
	server.MaxRecipients = cfg.MaxRecipients

	server.MaxMessageBytes = cfg.MaxMessageBytes
	if server.MaxMessageBytes <= 0 {
		server.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if server.ReadTimeout <= 0 {
		server.ReadTimeout = 60 * time.Second
	}
	if server.WriteTimeout <= 0 {
		server.WriteTimeout = 60 * time.Second
	}

	// go-smtp 的内部错误日志转到 zap
	server.ErrorLog = zap.NewStdLog(backend.logger.Named("go-smtp"))
	return server
}
