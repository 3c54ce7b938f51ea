package relay

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"mailarchive/backend/internal/domain"
)

// Mail 外发邮件内容
type Mail struct {
	From    domain.Address
	To      domain.Address
	Subject string
	Text    string
	HTML    string
	Date    time.Time
}

// Compose 生成 MIME 报文。
//
// 同时有纯文本和 HTML 时使用 multipart/alternative；Message-ID 形如 <uuid@发件域名>。
func Compose(m Mail) (*Envelope, error) {
	if m.Text == "" && m.HTML == "" {
		return nil, fmt.Errorf("compose: message has no body")
	}

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	host := domain.DomainOf(m.From.Address)
	if host == "" {
		host = "localhost"
	}
	messageID := uuid.New().String() + "@" + host

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Name: m.From.Name, Address: m.From.Address}})
	h.SetAddressList("To", []*mail.Address{{Name: m.To.Name, Address: m.To.Address}})
	h.SetSubject(m.Subject)
	h.SetMessageID(messageID)

	var buf bytes.Buffer
	switch {
	case m.Text != "" && m.HTML != "":
		iw, err := mail.CreateInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		if err := writeInline(iw, "text/plain", m.Text); err != nil {
			return nil, err
		}
		if err := writeInline(iw, "text/html", m.HTML); err != nil {
			return nil, err
		}
		if err := iw.Close(); err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
	default:
		contentType, body := "text/plain", m.Text
		if m.HTML != "" {
			contentType, body = "text/html", m.HTML
		}
		h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
	}

	return &Envelope{
		From:      m.From.Address,
		To:        []string{m.To.Address},
		Data:      buf.Bytes(),
		MessageID: "<" + messageID + ">",
	}, nil
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("compose %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("compose %s part: %w", contentType, err)
	}
	return w.Close()
}
