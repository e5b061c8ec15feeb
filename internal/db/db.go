package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Config struct {
	// Name identifies the in-memory database; empty picks a unique one.
	Name string
}

// Open opens an in-memory SQLite database. The pool is pinned to a single
// connection because each connection would otherwise see its own database.
// Contents are gone once the handle is closed.
func Open(cfg Config) (*sql.DB, error) {
	name := cfg.Name
	if name == "" {
		name = "claimsaga-" + uuid.NewString()
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&_pragma=foreign_keys(1)", name)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return conn, nil
}
