package domain

// Attachment 表示邮件附件，内容写入后不可变。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`            // 附件唯一标识
	MessageID   string `json:"messageId" gorm:"type:varchar(36);index;not null"` // 所属邮件ID
	Position    int    `json:"-"`                                                // 在原邮件中的顺序
	Filename    string `json:"filename" gorm:"type:varchar(255)"`                // 文件名
	ContentType string `json:"contentType" gorm:"type:varchar(255)"`             // MIME类型
	ContentID   string `json:"contentId,omitempty" gorm:"type:varchar(255)"`     // Content-ID（内嵌图片）
	Inline      bool   `json:"inline,omitempty"`                                 // 是否为 inline 部件
	Size        int64  `json:"size"`                                             // 大小（字节）
	Content     []byte `json:"content,omitempty"`                                // 解码后的内容
}
