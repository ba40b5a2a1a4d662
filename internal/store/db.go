package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

import (
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

// Dialect identifiers.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Open opens the record store for cfg.DSN and pings it.
func Open(cfg config.DatabaseCfg) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("store: empty dsn")
	}
	dialect, err := DetectDialect(dsn)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectSQLite:
		dsn = ensureSQLiteParams(normalizeSQLiteDSN(dsn))
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("store: sql handle: %w", err)
	}
	tunePool(sqlDB, cfg, dialect)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return conn, nil
}

// Migrate creates or updates the join tables.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&LinkRow{}, &ImageRow{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// DetectDialect infers the dialect from a DSN.
func DetectDialect(dsn string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"),
		strings.HasPrefix(lower, "sqlite://"),
		!strings.Contains(lower, "://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("store: unsupported dsn: %s", dsn)
	}
}

func tunePool(sqlDB *sql.DB, cfg config.DatabaseCfg, dialect string) {
	maxOpen, maxIdle := 25, 25
	if dialect == DialectSQLite {
		maxOpen, maxIdle = 10, 10
	}
	if cfg.MaxOpenConns > 0 {
		maxOpen = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		maxIdle = cfg.MaxIdleConns
	}
	lifetime := 30 * time.Minute
	if cfg.ConnMaxLifetimeSec > 0 {
		lifetime = time.Duration(cfg.ConnMaxLifetimeSec) * time.Second
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
}

func normalizeSQLiteDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "sqlite://") {
		return "file:" + dsn[len("sqlite://"):]
	}
	return dsn
}

// ensureSQLiteParams appends busy timeout and journal pragmas unless already set.
func ensureSQLiteParams(dsn string) string {
	wanted := [][2]string{
		{"_pragma=busy_timeout", "5000"},
		{"_pragma=journal_mode", "WAL"},
		{"_pragma=foreign_keys", "1"},
	}
	lower := strings.ToLower(dsn)
	var add []string
	for _, kv := range wanted {
		if strings.Contains(lower, kv[0]) {
			continue
		}
		if kv[0] == "_pragma=journal_mode" && strings.Contains(lower, "mode=memory") {
			continue
		}
		add = append(add, kv[0]+"("+kv[1]+")")
	}
	if len(add) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

func sqlitePath(dsn string) string {
	path := dsn
	if strings.HasPrefix(strings.ToLower(path), "file:") {
		path = path[len("file:"):]
	}
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.TrimPrefix(path, "//")
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	return path
}

func ensureSQLiteDir(dsn string) error {
	path := sqlitePath(dsn)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create sqlite dir: %w", err)
	}
	return nil
}
