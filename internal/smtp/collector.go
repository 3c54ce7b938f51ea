package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	gosmtp "github.com/emersion/go-smtp"
)

// DefaultMaxMessageBytes 单封邮件默认上限（25 MiB）
const DefaultMaxMessageBytes int64 = 25 << 20

const chunkSize = 32 << 10

// ErrMessageTooLarge 邮件超过大小上限
var ErrMessageTooLarge = errors.New("message exceeds size limit")

// TransportError 读取 DATA 流时连接出错
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("read message stream: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Collect 分块读取 DATA 流，直到 EOF、超出上限或 ctx 取消。
//
// 任何错误都会丢弃已读取的部分内容。maxBytes 小于等于 0 时使用默认上限。
func Collect(ctx context.Context, r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len())+int64(n) > maxBytes {
				return nil, ErrMessageTooLarge
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			if errors.Is(err, gosmtp.ErrDataTooLarge) {
				return nil, ErrMessageTooLarge
			}
			return nil, &TransportError{Err: err}
		}
	}
}
