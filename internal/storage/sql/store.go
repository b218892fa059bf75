package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 支持的数据库类型
const (
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypePgx      = "pgx"
)

// Options 连接参数
type Options struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate 为 true 时打开后立即迁移
	AutoMigrate bool
}

// Store SQL 任务存储（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db     *sql.DB
	gormDB *gorm.DB
	kind   string
}

// driverName 数据库类型对应的 database/sql 驱动名
func driverName(kind string) (string, error) {
	switch kind {
	case TypeMySQL:
		return "mysql", nil
	case TypePostgres:
		return "postgres", nil
	case TypePgx:
		return "pgx", nil
	}
	return "", fmt.Errorf("unsupported database type: %s (supported: mysql, postgres, pgx)", kind)
}

// NewStore 创建 SQL 任务存储
func NewStore(opts Options) (*Store, error) {
	driver, err := driverName(opts.Type)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := openStore(db, opts.Type)
	if err != nil {
		db.Close()
		return nil, err
	}

	if opts.AutoMigrate {
		if err := store.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// openStore 在已有连接上初始化 GORM
func openStore(db *sql.DB, kind string) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	if kind == TypeMySQL {
		dialector = mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true})
	} else {
		dialector = postgres.New(postgres.Config{Conn: db})
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &Store{db: db, gormDB: gormDB, kind: kind}, nil
}

// Type 数据库类型
func (s *Store) Type() string {
	return s.kind
}

// Migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) Migrate() error {
	return s.gormDB.AutoMigrate(&JobRecord{})
}

// Drop 删除任务表
func (s *Store) Drop() error {
	return s.gormDB.Migrator().DropTable(&JobRecord{})
}

// Ping 检查数据库健康状态
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
