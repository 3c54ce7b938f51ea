package service

import (
	"context"
	"strings"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/storage"
)

// QueryService 归档查询接口，供外部 API 层调用。
type QueryService struct {
	messages storage.MessageRepository
}

// NewQueryService 创建查询服务。
func NewQueryService(messages storage.MessageRepository) *QueryService {
	return &QueryService{messages: messages}
}

// ListPage 按接收时间倒序分页列出邮件。
func (s *QueryService) ListPage(ctx context.Context, filter domain.MessageFilter, page, pageSize int) (*domain.MessagePage, error) {
	return s.messages.Find(ctx, filter, pageRequest(page, pageSize))
}

// GetByID 获取单封邮件，不存在时返回 storage.ErrMessageNotFound。
func (s *QueryService) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, storage.ErrMessageNotFound
	}
	return s.messages.FindByID(ctx, id)
}

// SearchPage 子串搜索，不区分大小写。
//
// 空关键字等同于列出全部；不支持的字段按全部字段搜索。
func (s *QueryService) SearchPage(ctx context.Context, term string, field domain.SearchField, page, pageSize int) (*domain.MessagePage, error) {
	return s.SearchFiltered(ctx, domain.SearchQuery{Term: term, Field: field}, page, pageSize)
}

// SearchFiltered 带筛选条件的搜索。
func (s *QueryService) SearchFiltered(ctx context.Context, q domain.SearchQuery, page, pageSize int) (*domain.MessagePage, error) {
	q.Term = strings.TrimSpace(q.Term)
	q.Field = domain.SearchField(strings.ToLower(strings.TrimSpace(string(q.Field))))
	if !q.Field.Valid() {
		q.Field = domain.SearchAll
	}

	req := pageRequest(page, pageSize)
	if q.Term == "" {
		return s.messages.Find(ctx, q.Filter, req)
	}
	return s.messages.Search(ctx, q, req)
}

func pageRequest(page, pageSize int) domain.PageRequest {
	return domain.PageRequest{Page: page, PageSize: pageSize}.Normalize()
}
