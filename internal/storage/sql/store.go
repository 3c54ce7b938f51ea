package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 PostgreSQL、MySQL 5.7+ 和 SQLite）
type Store struct {
	db         *gorm.DB
	driverName string // "postgres" / "mysql" / "sqlite"
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建SQL数据库存储，连接成功后自动迁移表结构
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	dialector, err := openDialector(driverName, dsn)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// SQLite 内存库每个连接是独立数据库，只能使用单连接
	if driverName == "sqlite" {
		maxOpenConns, maxIdleConns = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:         db,
		driverName: driverName,
	}

	// 自动执行数据库迁移
	if err := store.Migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func openDialector(driverName, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	switch driverName {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return gormmysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", driverName)
	}
}

// Migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&domain.User{},
		&domain.Message{},
		&domain.Attachment{},
		&domain.MessageRecipient{},
	)
}

// Driver 返回数据库类型
func (s *Store) Driver() string {
	return s.driverName
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("database connection is nil: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// isUniqueViolation 判断是否为唯一索引冲突
//
// TranslateError 已将多数驱动错误转换为 gorm.ErrDuplicatedKey，这里再按驱动错误码兜底。
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
