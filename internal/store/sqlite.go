package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/smartstar/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to prevent SQLITE_BUSY
	retry   shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS device_state (
		device_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (device_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_device_state_updated ON device_state(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value stored under key for a device.
func (s *SQLiteStore) Get(ctx context.Context, deviceID, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM device_state WHERE device_id = ? AND key = ?`, deviceID, key)

	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan device state: %w", err)
	}
	return value, true, nil
}

const upsertQuery = `
	INSERT INTO device_state (device_id, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(device_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

// Set stores value under key for a device.
func (s *SQLiteStore) Set(ctx context.Context, deviceID, key, value string) error {
	return s.write(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, upsertQuery, deviceID, key, value, time.Now().Unix()); err != nil {
			return fmt.Errorf("set device state: %w", err)
		}
		return nil
	})
}

// Replace deletes the device namespace and writes values in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, deviceID string, values map[string]string) error {
	return s.write(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin replace: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM device_state WHERE device_id = ?`, deviceID); err != nil {
			return fmt.Errorf("clear device state: %w", err)
		}
		now := time.Now().Unix()
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, upsertQuery, deviceID, key, value, now); err != nil {
				return fmt.Errorf("set device state %s: %w", key, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit replace: %w", err)
		}
		return nil
	})
}

// Touch refreshes updated_at of every key of a device so PurgeIdle keeps it.
func (s *SQLiteStore) Touch(ctx context.Context, deviceID string) error {
	return s.write(ctx, func() error {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE device_state SET updated_at = ? WHERE device_id = ?`, time.Now().Unix(), deviceID); err != nil {
			return fmt.Errorf("touch device state: %w", err)
		}
		return nil
	})
}

// Clear removes all state stored for a device.
func (s *SQLiteStore) Clear(ctx context.Context, deviceID string) error {
	return s.write(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM device_state WHERE device_id = ?`, deviceID); err != nil {
			return fmt.Errorf("clear device state: %w", err)
		}
		return nil
	})
}

// PurgeIdle removes devices that have not written or touched any state within ttl.
func (s *SQLiteStore) PurgeIdle(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
	DELETE FROM device_state WHERE device_id IN (
		SELECT device_id FROM device_state
		GROUP BY device_id
		HAVING MAX(updated_at) < ?
	)`

	var deleted int64
	err := s.write(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, threshold)
		if err != nil {
			return fmt.Errorf("purge idle devices: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, op func() error) error {
	return shared.RetryOnConflict(ctx, s.retry, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return op()
	})
}
