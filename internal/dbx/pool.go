// Package dbx owns the database connection pool. It is a thin wrapper
// around gorm used exclusively as a pool and transaction manager: every
// call site in this module reaches the database through Raw/Exec/
// Transaction, never through gorm's struct-tag CRUD or AutoMigrate. The
// worker never creates or alters tables; schema ownership lives
// with an external collaborator.
package dbx

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Pool wraps a *gorm.DB configured as a bounded connection pool.
type Pool struct {
	DB *gorm.DB
}

// Options configures the underlying connection pool.
type Options struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

const (
	defaultMaxIdleConns    = 5
	defaultMaxOpenConns    = 5
	defaultConnMaxLifetime = time.Hour
)

// Open establishes the pool as a single process-wide bounded pool
// (default 5 connections); that default is applied here when
// Options leaves the fields at zero.
func Open(opts Options, log *zap.Logger) (*Pool, error) {
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = defaultMaxIdleConns
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = defaultMaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = defaultConnMaxLifetime
	}

	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("dbx: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("dbx: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	log.Info("database pool opened",
		zap.Int("max_idle_conns", opts.MaxIdleConns),
		zap.Int("max_open_conns", opts.MaxOpenConns),
	)

	return &Pool{DB: db}, nil
}

// Ping verifies connectivity with select now(), matching the health
// endpoint's liveness contract.
func (p *Pool) Ping(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := p.DB.WithContext(ctx).Raw("SELECT now()").Scan(&now).Error; err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// Transaction runs fn inside a single database transaction, the shape the
// warehouse writer and the dispatcher both need for their per-run updates.
func (p *Pool) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return p.DB.WithContext(ctx).Transaction(fn)
}

// Close releases the underlying connections.
func (p *Pool) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
