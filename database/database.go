package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/viktsys/twmarket/config"
	"github.com/viktsys/twmarket/logger"
	"github.com/viktsys/twmarket/models"
)

// Store owns the database handle shared by importers, downloaders and the
// query commands.
type Store struct {
	db        *gorm.DB
	log       *logrus.Entry
	driver    string
	batchSize int
}

// Open connects, migrates every table and seeds the derivative list.
func Open(cfg config.DatabaseConfig, log *logrus.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite", "":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(log, cfg.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	} else {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	}

	s := &Store{
		db:        db,
		log:       log.WithField("component", "database"),
		driver:    cfg.Driver,
		batchSize: 500,
	}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"driver": cfg.Driver}).Info("database connected and migrated")
	return s, nil
}

// SetBatchSize bounds the rows per INSERT statement.
func (s *Store) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// DB exposes the gorm handle for read-only callers such as the API.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(
		&models.OptionRaw{},
		&models.FutureRaw{},
		&models.StockRaw{},
		&models.TXODailyQuote{},
		&models.StockListing{},
		&models.StockBar{},
		&models.DerivativeListing{},
		&models.DerivativeBar{},
		&models.DownloadLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := OptimizeIndexes(s.db); err != nil {
		s.log.WithError(err).Warn("failed to optimize indexes")
	}

	if err := SeedDerivatives(s.db); err != nil {
		return fmt.Errorf("failed to seed derivatives: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func ensureDir(path string) error {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}
