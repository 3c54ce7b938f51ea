// Package mboximport 把 mbox 文件中的邮件批量送入入站流水线。
package mboximport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	mboxlib "github.com/emersion/go-mbox"
	"go.uber.org/zap"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/mailparse"
	"mailarchive/backend/internal/monitoring"
	"mailarchive/backend/internal/pool"
)

// Ingester 入站流水线，与 SMTP 会话使用同一实现
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, env domain.Envelope) (*domain.Message, bool, error)
}

// Options 导入参数
type Options struct {
	Workers         int   // 并发数，默认 4
	MaxMessageBytes int64 // 单封上限，超出的邮件跳过；<= 0 不限制
}

// Stats 导入统计
type Stats struct {
	Total     int64 `json:"total"`
	Stored    int64 `json:"stored"`
	Duplicate int64 `json:"duplicate"`
	Malformed int64 `json:"malformed"`
	TooLarge  int64 `json:"tooLarge"`
	Failed    int64 `json:"failed"`
}

// Importer mbox 导入器
type Importer struct {
	ingest  Ingester
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New 创建导入器
func New(ingest Ingester, opts Options, logger *zap.Logger, metrics *monitoring.Metrics) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		ingest:  ingest,
		opts:    opts,
		logger:  logger.Named("import"),
		metrics: metrics,
	}
}

// counters 并发计数
type counters struct {
	total, stored, duplicate, malformed, tooLarge, failed atomic.Int64
}

func (c *counters) stats() *Stats {
	return &Stats{
		Total:     c.total.Load(),
		Stored:    c.stored.Load(),
		Duplicate: c.duplicate.Load(),
		Malformed: c.malformed.Load(),
		TooLarge:  c.tooLarge.Load(),
		Failed:    c.failed.Load(),
	}
}

// Import 逐封读取 mbox 并并发入库。
//
// 单封邮件失败只计数，不中断导入。mbox 读取错误时返回错误，已提交的邮件仍会处理完；
// ctx 取消时尚未开始的邮件不再处理。
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Stats, error) {
	workers := pool.NewWorkerPool(im.opts.Workers, im.opts.Workers*2, im.logger, im.metrics)
	workers.Start(ctx)

	var c counters
	err := im.feed(ctx, mboxlib.NewReader(r), workers, &c)
	workers.Stop()

	stats := c.stats()
	im.logger.Info("mbox import finished",
		zap.Int64("total", stats.Total),
		zap.Int64("stored", stats.Stored),
		zap.Int64("duplicate", stats.Duplicate),
		zap.Int64("malformed", stats.Malformed),
		zap.Int64("too_large", stats.TooLarge),
		zap.Int64("failed", stats.Failed),
	)
	return stats, err
}

func (im *Importer) feed(ctx context.Context, reader *mboxlib.Reader, workers *pool.WorkerPool, c *counters) error {
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := readMessage(msgReader, im.opts.MaxMessageBytes)
		c.total.Add(1)
		if errors.Is(err, errTooLarge) {
			c.tooLarge.Add(1)
			im.logger.Warn("message too large, skipped", zap.Int("index", idx))
			continue
		}
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		index := idx
		task := func() {
			_, created, err := im.ingest.Ingest(ctx, raw, domain.Envelope{})
			var nerr *mailparse.NormalizationError
			switch {
			case errors.As(err, &nerr):
				c.malformed.Add(1)
				im.logger.Warn("message could not be parsed", zap.Int("index", index), zap.Error(err))
			case err != nil:
				c.failed.Add(1)
				im.logger.Error("failed to ingest message", zap.Int("index", index), zap.Error(err))
			case created:
				c.stored.Add(1)
			default:
				c.duplicate.Add(1)
			}
		}
		if err := workers.Submit(ctx, task); err != nil {
			return err
		}
	}
}

var errTooLarge = errors.New("message exceeds size limit")

// readMessage 读取一封邮件；超出上限时丢弃剩余内容
func readMessage(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, errTooLarge
	}
	return raw, nil
}
