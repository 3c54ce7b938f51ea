// Package filesystem 在本地目录中归档原始邮件和导出附件。
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mailarchive/backend/internal/domain"
)

var (
	// ErrRawNotFound 原始邮件不存在
	ErrRawNotFound = errors.New("raw message not found")
	// ErrRawExists 原始邮件已归档，不允许覆盖
	ErrRawExists = errors.New("raw message already archived")
)

// Store 原始邮件归档
//
// 目录结构: {base}/raw/{id 前两位}/{id}/raw.eml，写入后不再修改。
type Store struct {
	basePath string
}

// NewStore 创建归档目录
func NewStore(basePath string) (*Store, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("invalid base path: empty")
	}
	if err := validatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}

	normalized := normalizePath(basePath)
	if err := os.MkdirAll(filepath.Join(normalized, "raw"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{basePath: normalized}, nil
}

// BasePath 归档根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// SaveRaw 保存原始邮件。
//
// 先写临时文件再硬链接到目标位置，目标已存在时返回 ErrRawExists，不会留下半截文件。
func (s *Store) SaveRaw(ctx context.Context, messageID string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.messageDir(messageID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create message directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".raw-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write raw message: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync raw message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close raw message: %w", err)
	}

	if err := os.Link(tmpName, filepath.Join(dir, "raw.eml")); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrRawExists
		}
		return fmt.Errorf("failed to publish raw message: %w", err)
	}
	return nil
}

// GetRaw 读取原始邮件
func (s *Store) GetRaw(ctx context.Context, messageID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.messageDir(messageID)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(dir, "raw.eml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrRawNotFound
		}
		return nil, fmt.Errorf("failed to read raw message: %w", err)
	}
	return content, nil
}

// ExportAttachment 把附件写入 dir，返回文件路径。
//
// 文件名经过清理并加上位置前缀，已存在的同名文件会被覆盖。
func ExportAttachment(dir string, att *domain.Attachment) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	name := att.Filename
	if name == "" {
		name = "attachment"
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d_%s", att.Position, SanitizeFilename(name)))
	if err := os.WriteFile(path, att.Content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return path, nil
}

// messageDir 校验 ID 并返回邮件目录
func (s *Store) messageDir(messageID string) (string, error) {
	if messageID == "" || messageID == "." || messageID == ".." ||
		strings.ContainsAny(messageID, `/\`) || strings.ContainsRune(messageID, 0) {
		return "", fmt.Errorf("invalid message id %q", messageID)
	}

	shard := messageID
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.basePath, "raw", shard, messageID), nil
}
