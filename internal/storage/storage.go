package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"mailarchive/backend/internal/domain"
)

var (
	// ErrMessageNotFound 邮件未找到错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrUserNotFound 用户未找到错误
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUser 用户邮箱已存在
	ErrDuplicateUser = errors.New("user already exists")
)

// MessageRepository 定义邮件归档的存取操作。
//
// Create 对 TransportMessageID 幂等：已存在同一传输 ID 时返回已有记录且 created 为 false，
// 并发写入同一 ID 也只会产生一条记录。
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) (*domain.Message, bool, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	Find(ctx context.Context, filter domain.MessageFilter, page domain.PageRequest) (*domain.MessagePage, error)
	Search(ctx context.Context, query domain.SearchQuery, page domain.PageRequest) (*domain.MessagePage, error)
}

// Directory 收件人目录的只读查询。
type Directory interface {
	// FindUsersByEmails 返回邮箱地址（不区分大小写）命中的用户，未命中的地址直接忽略。
	FindUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error)
}

// UserRepository 目录维护操作，仅供运维命令和测试使用。
type UserRepository interface {
	Directory
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Store 组合接口，sql 与 memory 两种实现均满足。
type Store interface {
	MessageRepository
	UserRepository
	Close() error
}

// LikeEscapeChar LIKE 转义字符；不用反斜杠，三种方言对字符串字面量中的反斜杠处理不一致。
const LikeEscapeChar = "!"

// EscapeLike 转义 LIKE 模式中的通配符，调用方需配合 ESCAPE '!' 使用。
func EscapeLike(term string) string {
	r := strings.NewReplacer(LikeEscapeChar, LikeEscapeChar+LikeEscapeChar, "%", LikeEscapeChar+"%", "_", LikeEscapeChar+"_")
	return r.Replace(term)
}

// NormalizeEmails 规范化并去重地址列表，保持首次出现的顺序。
func NormalizeEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = domain.NormalizeAddress(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// SortedUnique 返回排序去重后的副本，忽略空串。
func SortedUnique(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
