// Package db opens and migrates the SQLite metastore file.
//
// SQLite allows one writer at a time, so the package hands out a Pools pair:
// a single-connection write pool with immediate transaction locking, and a
// multi-connection read pool. Both run in WAL mode with a busy timeout so
// readers and the writer do not starve each other.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	busyTimeoutMillis = "5000"
	defaultReadConns  = 4
)

// Pools is the write/read connection pool pair over one metastore file.
type Pools struct {
	Write *sql.DB
	Read  *sql.DB
}

// Open opens the metastore file at path. readConns sizes the read pool;
// 0 selects the default of 4.
func Open(path string, readConns int) (*Pools, error) {
	write, err := openPool(path, true, 1)
	if err != nil {
		return nil, err
	}
	if readConns <= 0 {
		readConns = defaultReadConns
	}
	read, err := openPool(path, false, readConns)
	if err != nil {
		_ = write.Close()
		return nil, err
	}
	return &Pools{Write: write, Read: read}, nil
}

// Close closes both pools.
func (p *Pools) Close() error {
	readErr := p.Read.Close()
	if err := p.Write.Close(); err != nil {
		return err
	}
	return readErr
}

func openPool(path string, write bool, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite3", dsn(path, write))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pool.SetMaxOpenConns(maxConns)
	pool.SetMaxIdleConns(maxConns)
	pool.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return pool, nil
}

// dsn builds the hardened connection string. The write pool acquires the
// write lock up front (_txlock=immediate) so its transactions never upgrade
// from a read lock mid-flight.
func dsn(path string, write bool) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", busyTimeoutMillis)
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	if write {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
