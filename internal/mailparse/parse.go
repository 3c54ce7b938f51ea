// Package mailparse 将原始 RFC 5322 邮件解析为归档记录。
package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"mailarchive/backend/internal/domain"
)

func init() {
	// 国内及东亚邮箱常见的非 UTF-8 编码
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("gb2312", simplifiedchinese.GBK)
	charset.RegisterEncoding("gb18030", simplifiedchinese.GB18030)
	charset.RegisterEncoding("big5", traditionalchinese.Big5)
	charset.RegisterEncoding("shift_jis", japanese.ShiftJIS)
	charset.RegisterEncoding("euc-kr", korean.EUCKR)
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// NormalizationError 邮件结构无法解析
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err == nil {
		return "normalize message: " + e.Reason
	}
	return fmt.Sprintf("normalize message: %s: %v", e.Reason, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

func malformed(reason string, err error) error {
	return &NormalizationError{Reason: reason, Err: err}
}

// Parse 解析原始邮件。
//
// 返回的记录 ReceivedAt 为零值、IsSent 为 false，收件人由调用方补充。
// 未知字符集或传输编码不视为错误，保留原始字节。
func Parse(raw []byte) (*domain.Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, malformed("empty message", nil)
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return nil, malformed("read header", err)
	}

	msg := &domain.Message{
		Headers:     domain.Headers{},
		Attachments: make([]*domain.Attachment, 0),
		Size:        int64(len(raw)),
	}

	header := mail.Header{Header: entity.Header}
	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers.Add(fields.Key(), sanitize(value))
	}

	msg.Subject = sanitize(headerText(header, "Subject"))
	msg.From = addressList(header, "From")
	msg.To = addressList(header, "To")
	msg.SetTransportID(header.Get("Message-Id"))
	if date, err := header.Date(); err == nil && !date.IsZero() {
		d := date.UTC()
		msg.Date = &d
	}

	if err := walk(entity, msg); err != nil {
		return nil, err
	}

	msg.Text = sanitize(msg.Text)
	msg.HTML = sanitize(msg.HTML)
	return msg, nil
}

// walk 深度优先遍历 MIME 树：首个 text/plain 和 text/html 作为正文，其余符合条件的叶子作为附件
func walk(entity *message.Entity, msg *domain.Message) error {
	mediaType, params, _ := entity.Header.ContentType()
	if strings.HasPrefix(mediaType, "multipart/") {
		if params["boundary"] == "" {
			return malformed("multipart without boundary", nil)
		}

		mr := entity.MultipartReader()
		if mr == nil {
			return malformed("multipart without boundary", nil)
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil && !tolerable(err) {
				return malformed("read multipart", err)
			}
			if part == nil {
				return malformed("read multipart", err)
			}
			if err := walk(part, msg); err != nil {
				return err
			}
		}
	}

	// 传输编码损坏（如非法 base64）时保留已解码的部分；报文截断仍视为格式错误
	body, err := io.ReadAll(entity.Body)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return malformed("read body", err)
	}

	if mediaType == "" {
		mediaType = "text/plain"
	}
	disposition, dispParams, _ := entity.Header.ContentDisposition()
	filename := partFilename(dispParams, params)
	contentID := strings.Trim(entity.Header.Get("Content-Id"), "<> ")

	isAttachment := strings.EqualFold(disposition, "attachment")
	if !isAttachment {
		switch {
		case mediaType == "text/plain" && msg.Text == "":
			msg.Text = string(body)
			return nil
		case mediaType == "text/html" && msg.HTML == "":
			msg.HTML = string(body)
			return nil
		case strings.HasPrefix(mediaType, "text/"):
			// 重复的正文部件忽略
			return nil
		case filename == "" && contentID == "":
			return nil
		}
	}

	msg.Attachments = append(msg.Attachments, &domain.Attachment{
		Position:    len(msg.Attachments),
		Filename:    filename,
		ContentType: mediaType,
		ContentID:   contentID,
		Inline:      strings.EqualFold(disposition, "inline"),
		Size:        int64(len(body)),
		Content:     body,
	})
	return nil
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func partFilename(dispParams, typeParams map[string]string) string {
	name := dispParams["filename"]
	if name == "" {
		name = typeParams["name"]
	}
	if decoded, err := wordDecoder.DecodeHeader(name); err == nil {
		name = decoded
	}
	return sanitize(strings.TrimSpace(name))
}

func headerText(header mail.Header, key string) string {
	text, err := header.Text(key)
	if err != nil {
		return header.Get(key)
	}
	return text
}

// addressList 解析地址头；无法解析时只保留原文
func addressList(header mail.Header, key string) domain.AddressList {
	list := domain.AddressList{
		Value: []domain.Address{},
		Text:  sanitize(headerText(header, key)),
	}

	addrs, err := header.AddressList(key)
	if err != nil {
		return list
	}
	for _, a := range addrs {
		list.Value = append(list.Value, domain.Address{
			Address: strings.ToLower(a.Address),
			Name:    sanitize(a.Name),
		})
	}
	return list
}

// sanitize 替换非法 UTF-8 并去除 NUL，PostgreSQL text 列不接受二者
func sanitize(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.ReplaceAll(s, "\x00", "")
}
