package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"
)

// DB wraps a SQLite database connection for the profile's showroom.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

func encodeKeys(keys []string) ([]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	b, err := msgpack.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	return b, nil
}

func decodeKeys(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var keys []string
	if err := msgpack.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return keys, nil
}
