// Package relay 定义外发邮件中继接口及其公共类型。
package relay

import (
	"context"
	"fmt"
)

// Envelope 一封待投递的完整邮件
type Envelope struct {
	From      string   // MAIL FROM
	To        []string // RCPT TO
	Data      []byte   // RFC 5322 报文
	MessageID string   // 报文中的 Message-ID（含尖括号）
}

// Relay 外发中继
//
// Submit 只尝试一次，返回中继确认的传输 ID；失败时返回 *RelayError。
type Relay interface {
	Name() string
	Submit(ctx context.Context, env *Envelope) (string, error)
}

// RelayError 中继拒绝或不可达
type RelayError struct {
	Provider  string
	Temporary bool // 4xx、网络错误或限流
	Err       error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Provider, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}
