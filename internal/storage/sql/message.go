package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/storage"
)

// 列表查询不加载附件内容
var attachmentSummaryColumns = []string{
	"id", "message_id", "position", "filename", "content_type", "content_id", "inline", "size",
}

// Create 保存邮件
//
// 先按传输 ID 查询，不存在时在事务内插入；并发插入触发唯一索引冲突时回滚并返回先写入的记录。
func (s *Store) Create(ctx context.Context, message *domain.Message) (*domain.Message, bool, error) {
	tid := message.TransportID()
	if tid != "" {
		existing, err := s.findByTransportID(ctx, tid)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, storage.ErrMessageNotFound) {
			return nil, false, err
		}
	}

	record := prepareRecord(message)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(record).Error; err != nil {
			if tid != "" && isUniqueViolation(err) {
				return domain.ErrDuplicateTransportID
			}
			return fmt.Errorf("insert message: %w", err)
		}

		if len(record.Attachments) > 0 {
			if err := tx.Create(record.Attachments).Error; err != nil {
				return fmt.Errorf("insert attachments: %w", err)
			}
		}

		if len(record.Recipients) > 0 {
			rows := make([]domain.MessageRecipient, 0, len(record.Recipients))
			for _, userID := range record.Recipients {
				rows = append(rows, domain.MessageRecipient{MessageID: record.ID, UserID: userID})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert recipients: %w", err)
			}
		}
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateTransportID) {
		existing, findErr := s.findByTransportID(ctx, tid)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return record, true, nil
}

// FindByID 根据ID获取邮件（含附件内容和收件人）
func (s *Store) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}

	if err := s.loadRecipients(ctx, []*domain.Message{&msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Find 按筛选条件分页列出邮件
func (s *Store) Find(ctx context.Context, filter domain.MessageFilter, page domain.PageRequest) (*domain.MessagePage, error) {
	query := s.applyFilter(s.db.WithContext(ctx).Model(&domain.Message{}), filter)
	return s.paginate(ctx, query, page)
}

// Search 子串搜索，不区分大小写
func (s *Store) Search(ctx context.Context, q domain.SearchQuery, page domain.PageRequest) (*domain.MessagePage, error) {
	query := s.applyFilter(s.db.WithContext(ctx).Model(&domain.Message{}), q.Filter)

	term := strings.TrimSpace(q.Term)
	if term != "" {
		pattern := "%" + strings.ToLower(storage.EscapeLike(term)) + "%"
		like := func(column string) string {
			return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '%s'", column, storage.LikeEscapeChar)
		}

		switch q.Field {
		case domain.SearchFrom:
			query = query.Where(like("from_text"), pattern)
		case domain.SearchTo:
			query = query.Where(like("to_text"), pattern)
		case domain.SearchSubject:
			query = query.Where(like("subject"), pattern)
		default:
			query = query.Where(
				like("from_text")+" OR "+like("to_text")+" OR "+like("subject")+" OR "+like("text"),
				pattern, pattern, pattern, pattern,
			)
		}
	}

	return s.paginate(ctx, query, page)
}

func (s *Store) findByTransportID(ctx context.Context, tid string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Select("id").Where("transport_message_id = ?", tid).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, msg.ID)
}

func (s *Store) applyFilter(query *gorm.DB, filter domain.MessageFilter) *gorm.DB {
	if filter.RecipientID != "" {
		sub := s.db.Model(&domain.MessageRecipient{}).Select("message_id").Where("user_id = ?", filter.RecipientID)
		query = query.Where("id IN (?)", sub)
	}
	if filter.IsSent != nil {
		query = query.Where("is_sent = ?", *filter.IsSent)
	}
	if filter.Since != nil {
		query = query.Where("received_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		query = query.Where("received_at < ?", filter.Until.UTC())
	}
	return query
}

// paginate 统计总数后按接收时间倒序取一页
func (s *Store) paginate(ctx context.Context, query *gorm.DB, page domain.PageRequest) (*domain.MessagePage, error) {
	page = page.Normalize()

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	var messages []domain.Message
	err := query.Session(&gorm.Session{}).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Select(attachmentSummaryColumns).Order("position ASC")
		}).
		Order("received_at DESC").
		Order("id DESC").
		Offset(page.Skip()).
		Limit(page.PageSize).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ptrs := make([]*domain.Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	if err := s.loadRecipients(ctx, ptrs); err != nil {
		return nil, err
	}

	return domain.NewMessagePage(messages, int(total), page), nil
}

// loadRecipients 批量填充 Recipients 字段
func (s *Store) loadRecipients(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, 0, len(messages))
	byID := make(map[string]*domain.Message, len(messages))
	for _, msg := range messages {
		msg.Recipients = []string{}
		ids = append(ids, msg.ID)
		byID[msg.ID] = msg
	}

	var rows []domain.MessageRecipient
	err := s.db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Order("user_id ASC").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}

	for _, row := range rows {
		if msg, ok := byID[row.MessageID]; ok {
			msg.Recipients = append(msg.Recipients, row.UserID)
		}
	}
	return nil
}

// prepareRecord 复制入参并补全存储层负责的字段
func prepareRecord(message *domain.Message) *domain.Message {
	record := *message
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.ReceivedAt = time.Now().UTC().Truncate(time.Millisecond)
	record.Recipients = storage.SortedUnique(message.Recipients)
	if record.Headers == nil {
		record.Headers = domain.Headers{}
	}

	record.Attachments = make([]*domain.Attachment, 0, len(message.Attachments))
	for i, att := range message.Attachments {
		a := *att
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.MessageID = record.ID
		a.Position = i
		if a.Size == 0 {
			a.Size = int64(len(a.Content))
		}
		record.Attachments = append(record.Attachments, &a)
	}
	return &record
}
