package domain

import (
	"strings"
	"time"
)

// Address 表示一个邮件地址及其显示名。
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// AddressList 表示一组地址以及原始显示文本（用于搜索）。
type AddressList struct {
	Value []Address `json:"value" gorm:"serializer:json;type:text"`
	Text  string    `json:"text" gorm:"type:text"`
}

// Addresses 返回列表中的全部地址（保持原顺序）。
func (l AddressList) Addresses() []string {
	out := make([]string, 0, len(l.Value))
	for _, a := range l.Value {
		if a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out
}

// Contains 判断列表中是否已有该地址（不区分大小写）。
func (l AddressList) Contains(addr string) bool {
	for _, a := range l.Value {
		if strings.EqualFold(a.Address, addr) {
			return true
		}
	}
	return false
}

// Headers 按小写头名保存原始头值，同名头按出现顺序排列。
type Headers map[string][]string

// Add 追加一个头字段。
func (h Headers) Add(name, value string) {
	key := strings.ToLower(name)
	h[key] = append(h[key], value)
}

// Get 返回第一个同名头的值。
func (h Headers) Get(name string) string {
	values := h[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Message 表示归档库中的一封邮件（入站或已发送）。
//
// 记录创建后不再修改；TransportMessageID 非空时全库唯一。
type Message struct {
	ID                 string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	From               AddressList   `json:"from" gorm:"embedded;embeddedPrefix:from_"`
	To                 AddressList   `json:"to" gorm:"embedded;embeddedPrefix:to_"`
	Subject            string        `json:"subject,omitempty" gorm:"type:text"`
	Text               string        `json:"text,omitempty" gorm:"type:text"`
	HTML               string        `json:"html,omitempty" gorm:"type:text"`
	Attachments        []*Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	Headers            Headers       `json:"headers,omitempty" gorm:"serializer:json;type:text"`
	Date               *time.Time    `json:"date,omitempty"`
	ReceivedAt         time.Time     `json:"receivedAt" gorm:"index;not null"`
	TransportMessageID *string       `json:"messageId,omitempty" gorm:"type:varchar(512);uniqueIndex"`
	Recipients         []string      `json:"recipients" gorm:"-"`
	IsSent             bool          `json:"isSent" gorm:"default:false;index"`
	SMTPMailFrom       string        `json:"smtpMailFrom,omitempty" gorm:"type:varchar(255)"`
	SMTPRcptTo         []string      `json:"smtpRcptTo,omitempty" gorm:"serializer:json;type:text"`
	Size               int64         `json:"size"`
}

// TransportID 返回传输层消息 ID，缺失时返回空串。
func (m *Message) TransportID() string {
	if m.TransportMessageID == nil {
		return ""
	}
	return *m.TransportMessageID
}

// SetTransportID 设置传输层消息 ID；空白值视为缺失（存为 NULL）。
func (m *Message) SetTransportID(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		m.TransportMessageID = nil
		return
	}
	m.TransportMessageID = &id
}

// MessageRecipient 邮件与目录用户的关联（message_recipients 表）。
type MessageRecipient struct {
	MessageID string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"primaryKey;type:varchar(36);index"`
}

// Envelope 是 SMTP 协议层声明的发件人与收件人。
type Envelope struct {
	MailFrom string
	RcptTo   []string
}

// Sender 是已由外部认证的发件人身份。
type Sender struct {
	UserID  string
	Address string
	Name    string
}
