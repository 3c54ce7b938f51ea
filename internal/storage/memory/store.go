package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/storage"
)

// Store 使用内存保存邮件与目录数据，主要用于开发验证和测试。
type Store struct {
	mu          sync.RWMutex
	messages    map[string]*domain.Message // messageID -> message
	byTransport map[string]string          // transportMessageID -> messageID
	users       map[string]*domain.User    // userID -> user
	byEmail     map[string]string          // email -> userID

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		messages:    make(map[string]*domain.Message),
		byTransport: make(map[string]string),
		users:       make(map[string]*domain.User),
		byEmail:     make(map[string]string),
		now:         time.Now,
	}
}

// Create 保存邮件；传输 ID 已存在时返回已有记录。
func (s *Store) Create(ctx context.Context, message *domain.Message) (*domain.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tid := message.TransportID(); tid != "" {
		if id, ok := s.byTransport[tid]; ok {
			return cloneMessage(s.messages[id]), false, nil
		}
	}

	stored := cloneMessage(message)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.ReceivedAt = s.now().UTC()
	stored.Recipients = storage.SortedUnique(stored.Recipients)
	for i, att := range stored.Attachments {
		if att.ID == "" {
			att.ID = uuid.New().String()
		}
		att.MessageID = stored.ID
		att.Position = i
	}

	s.messages[stored.ID] = stored
	if tid := stored.TransportID(); tid != "" {
		s.byTransport[tid] = stored.ID
	}

	return cloneMessage(stored), true, nil
}

// FindByID 根据ID获取邮件
func (s *Store) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

// Find 按筛选条件分页列出邮件
func (s *Store) Find(ctx context.Context, filter domain.MessageFilter, page domain.PageRequest) (*domain.MessagePage, error) {
	return s.collect(func(msg *domain.Message) bool {
		return matchesFilter(msg, filter)
	}, page), nil
}

// CreateUser 添加目录用户
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := domain.NormalizeAddress(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return storage.ErrDuplicateUser
	}

	u := *user
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Email = email
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = &u
	s.byEmail[email] = u.ID
	*user = u
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[domain.NormalizeAddress(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *s.users[id]
	return &u, nil
}

// FindUsersByEmails 批量查询目录用户
func (s *Store) FindUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(emails))
	for _, email := range storage.NormalizeEmails(emails) {
		if id, ok := s.byEmail[email]; ok {
			users = append(users, *s.users[id])
		}
	}
	return users, nil
}

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// collect 在读锁内过滤、排序并分页
func (s *Store) collect(match func(*domain.Message) bool, page domain.PageRequest) *domain.MessagePage {
	page = page.Normalize()

	s.mu.RLock()
	filtered := make([]*domain.Message, 0)
	for _, msg := range s.messages {
		if match(msg) {
			filtered = append(filtered, msg)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(filtered)

	total := len(filtered)
	start := page.Skip()
	if start < 0 || start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}

	items := make([]domain.Message, 0, end-start)
	for _, msg := range filtered[start:end] {
		items = append(items, *cloneMessage(msg))
	}
	return domain.NewMessagePage(items, total, page)
}

// sortNewestFirst 按接收时间倒序，时间相同按ID倒序
func sortNewestFirst(msgs []*domain.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].ReceivedAt.After(msgs[j].ReceivedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
}

func matchesFilter(msg *domain.Message, filter domain.MessageFilter) bool {
	if filter.RecipientID != "" && !containsString(msg.Recipients, filter.RecipientID) {
		return false
	}
	if filter.IsSent != nil && msg.IsSent != *filter.IsSent {
		return false
	}
	if filter.Since != nil && msg.ReceivedAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && !msg.ReceivedAt.Before(*filter.Until) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// cloneMessage 深拷贝，避免调用方修改存储内的数据
func cloneMessage(src *domain.Message) *domain.Message {
	if src == nil {
		return nil
	}
	dst := *src
	dst.From.Value = append([]domain.Address(nil), src.From.Value...)
	dst.To.Value = append([]domain.Address(nil), src.To.Value...)
	dst.Recipients = append([]string(nil), src.Recipients...)
	dst.SMTPRcptTo = append([]string(nil), src.SMTPRcptTo...)
	if src.TransportMessageID != nil {
		tid := *src.TransportMessageID
		dst.TransportMessageID = &tid
	}
	if src.Date != nil {
		d := *src.Date
		dst.Date = &d
	}
	if src.Headers != nil {
		dst.Headers = make(domain.Headers, len(src.Headers))
		for k, v := range src.Headers {
			dst.Headers[k] = append([]string(nil), v...)
		}
	}
	if src.Attachments != nil {
		dst.Attachments = make([]*domain.Attachment, 0, len(src.Attachments))
		for _, att := range src.Attachments {
			a := *att
			a.Content = append([]byte(nil), att.Content...)
			dst.Attachments = append(dst.Attachments, &a)
		}
	}
	return &dst
}
