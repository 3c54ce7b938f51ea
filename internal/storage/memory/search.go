package memory

import (
	"context"
	"strings"

	"mailarchive/backend/internal/domain"
)

// Search 子串搜索（内存存储实现），不区分大小写
func (s *Store) Search(ctx context.Context, query domain.SearchQuery, page domain.PageRequest) (*domain.MessagePage, error) {
	term := strings.ToLower(strings.TrimSpace(query.Term))
	return s.collect(func(msg *domain.Message) bool {
		return matchesFilter(msg, query.Filter) && matchesTerm(msg, term, query.Field)
	}, page), nil
}

// matchesTerm 检查邮件是否包含搜索词
func matchesTerm(msg *domain.Message, term string, field domain.SearchField) bool {
	if term == "" {
		return true
	}

	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), term)
	}

	switch field {
	case domain.SearchFrom:
		return contains(msg.From.Text)
	case domain.SearchTo:
		return contains(msg.To.Text)
	case domain.SearchSubject:
		return contains(msg.Subject)
	default:
		return contains(msg.From.Text) ||
			contains(msg.To.Text) ||
			contains(msg.Subject) ||
			contains(msg.Text)
	}
}
