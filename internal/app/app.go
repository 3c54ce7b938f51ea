// Package app 根据配置组装存储、归档、事件与服务，供 server 和 mailctl 共用。
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mailarchive/backend/internal/config"
	"mailarchive/backend/internal/health"
	"mailarchive/backend/internal/logger"
	"mailarchive/backend/internal/monitoring"
	"mailarchive/backend/internal/relay"
	"mailarchive/backend/internal/relay/ses"
	"mailarchive/backend/internal/relay/smtprelay"
	"mailarchive/backend/internal/service"
	"mailarchive/backend/internal/storage"
	"mailarchive/backend/internal/storage/filesystem"
	"mailarchive/backend/internal/storage/memory"
	"mailarchive/backend/internal/storage/redis"
	sqlstore "mailarchive/backend/internal/storage/sql"
)

// Components 组装好的运行时组件
type Components struct {
	Store    storage.Store
	Archive  *filesystem.Store // 未配置 archive.path 时为 nil
	Redis    *redis.Client     // 未启用 redis 时为 nil
	Resolver *service.RecipientResolver
	Ingest   *service.IngestService
	Query    *service.QueryService
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// NewLogger 按配置创建日志记录器；stderr 为 true 时控制台输出写到标准错误
func NewLogger(cfg config.LogConfig, stderr bool) (*zap.Logger, error) {
	return logger.NewLogger(logger.Config{
		Level:       cfg.Level,
		Development: cfg.Development,
		LogFile:     cfg.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
		Stderr:      stderr,
	})
}

// OpenStore 打开存储：database.type 为空时使用内存存储
func OpenStore(cfg config.DatabaseConfig, log *zap.Logger) (storage.Store, error) {
	if cfg.Type == "" {
		log.Warn("database.type not set, using memory storage; messages are lost on exit")
		return memory.NewStore(), nil
	}

	store, err := sqlstore.NewStore(cfg.Type, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}
	log.Info("database storage initialized", zap.String("type", cfg.Type))
	return store, nil
}

// Build 组装入站与查询所需的组件；出错时已打开的资源会被关闭
func Build(ctx context.Context, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) (*Components, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := OpenStore(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	c := &Components{
		Store:    store,
		Resolver: service.NewRecipientResolver(store),
		Query:    service.NewQueryService(store),
		Metrics:  metrics,
		Logger:   log,
	}

	deps := service.IngestDeps{
		Messages: store,
		Resolver: c.Resolver,
		Metrics:  metrics,
		Logger:   log,
	}

	if cfg.Archive.Path != "" {
		archive, err := filesystem.NewStore(cfg.Archive.Path)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open raw archive: %w", err)
		}
		c.Archive = archive
		deps.Archive = archive
		log.Info("raw message archive enabled", zap.String("path", archive.BasePath()))
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Redis = client
		deps.Events = redis.NewEventPublisher(client, cfg.Redis.Channel)
	}

	c.Ingest = service.NewIngestService(deps)
	return c, nil
}

// Dispatcher 使用给定中继创建外发服务
func (c *Components) Dispatcher(r relay.Relay) *service.DispatchService {
	return service.NewDispatchService(service.DispatchDeps{
		Relay:    r,
		Messages: c.Store,
		Resolver: c.Resolver,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	})
}

// RegisterHealthChecks 注册存储和 Redis 的就绪检查
func (c *Components) RegisterHealthChecks(hc *health.HealthChecker) {
	if pinger, ok := c.Store.(interface{ Health(context.Context) error }); ok {
		hc.AddReadinessCheck("database", pinger.Health)
	}
	if c.Redis != nil {
		hc.AddReadinessCheck("redis", c.Redis.Ping)
	}
}

// Close 关闭存储和 Redis 连接
func (c *Components) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}

// NewRelay 按 relay.provider 创建外发中继
func NewRelay(ctx context.Context, cfg config.RelayConfig) (relay.Relay, error) {
	switch cfg.Provider {
	case "", "smtp":
		if cfg.Host == "" {
			return nil, errors.New("relay.host is required for the smtp relay")
		}
		return smtprelay.New(smtprelay.Config{
			Host:               cfg.Host,
			Port:               cfg.Port,
			TLS:                cfg.TLS,
			StartTLS:           cfg.StartTLS,
			Username:           cfg.Username,
			Password:           cfg.Password,
			HELO:               cfg.HELO,
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}), nil
	case "ses":
		client, err := ses.New(ctx, ses.Config{
			Region:           cfg.SESRegion,
			AccessKeyID:      cfg.SESAccessKeyID,
			SecretAccessKey:  cfg.SESSecretAccessKey,
			ConfigurationSet: cfg.SESConfigurationSet,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported relay provider: %s", cfg.Provider)
	}
}
