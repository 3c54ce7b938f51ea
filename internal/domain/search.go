package domain

import (
	"math"
	"time"
)

// 分页默认值
const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPage 保证 Skip() 不会溢出
	MaxPage = math.MaxInt32 / MaxPageSize
)

// SearchField 限定搜索字段
type SearchField string

const (
	SearchAll     SearchField = ""
	SearchFrom    SearchField = "from"
	SearchTo      SearchField = "to"
	SearchSubject SearchField = "subject"
)

// Valid 判断字段是否受支持
func (f SearchField) Valid() bool {
	switch f {
	case SearchAll, SearchFrom, SearchTo, SearchSubject:
		return true
	}
	return false
}

// MessageFilter 邮件列表筛选条件（全部可选）
type MessageFilter struct {
	RecipientID string     // 只返回该用户作为收件人的邮件
	IsSent      *bool      // 已发送 / 已接收
	Since       *time.Time // ReceivedAt >= Since
	Until       *time.Time // ReceivedAt < Until
}

// SearchQuery 子串搜索条件
type SearchQuery struct {
	Term   string
	Field  SearchField
	Filter MessageFilter
}

// PageRequest 分页参数，Skip/Limit 由 Page/PageSize 换算
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize 补全默认值并限制最大页大小和页码
func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Skip 返回需要跳过的记录数
func (p PageRequest) Skip() int {
	return (p.Page - 1) * p.PageSize
}

// MessagePage 分页查询结果
type MessagePage struct {
	Items       []Message `json:"emails"`
	Total       int       `json:"total"`
	TotalPages  int       `json:"totalPages"`
	CurrentPage int       `json:"currentPage"`
}

// NewMessagePage 按 ceil(total/pageSize) 计算总页数
func NewMessagePage(items []Message, total int, page PageRequest) *MessagePage {
	if items == nil {
		items = []Message{}
	}
	totalPages := 0
	if page.PageSize > 0 {
		totalPages = (total + page.PageSize - 1) / page.PageSize
	}
	return &MessagePage{
		Items:       items,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page.Page,
	}
}
