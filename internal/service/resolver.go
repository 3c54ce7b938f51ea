package service

import (
	"context"
	"fmt"

	"mailarchive/backend/internal/storage"
)

// RecipientResolver 把邮件地址映射为目录中的用户 ID。
type RecipientResolver struct {
	directory storage.Directory
}

// NewRecipientResolver 创建收件人解析器。
func NewRecipientResolver(directory storage.Directory) *RecipientResolver {
	return &RecipientResolver{directory: directory}
}

// Resolve 返回排序去重后的用户 ID；目录中不存在的地址被忽略。
func (r *RecipientResolver) Resolve(ctx context.Context, addrs []string) ([]string, error) {
	emails := storage.NormalizeEmails(addrs)
	if len(emails) == 0 {
		return []string{}, nil
	}

	users, err := r.directory.FindUsersByEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return storage.SortedUnique(ids), nil
}
