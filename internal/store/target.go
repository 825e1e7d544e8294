package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertTarget inserts or updates a target's metadata. Unread bookkeeping is
// left untouched.
func (db *DB) UpsertTarget(t *Target) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO targets (target_key, kind, name, title, read_role, read_plan, locked, locked_until, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_key) DO UPDATE SET
			title = excluded.title,
			read_role = excluded.read_role,
			read_plan = excluded.read_plan,
			locked = excluded.locked,
			locked_until = excluded.locked_until,
			updated_at = excluded.updated_at`,
		t.Key, t.Kind, t.Name, t.Title, t.ReadRole, t.ReadPlan, t.Locked, t.LockedUntil, now)
	return err
}

// BulkUpsertTargets replaces channel metadata in a single transaction.
func (db *DB) BulkUpsertTargets(targets []Target) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, t := range targets {
		if _, err := tx.Exec(`
			INSERT INTO targets (target_key, kind, name, title, read_role, read_plan, locked, locked_until, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(target_key) DO UPDATE SET
				title = excluded.title,
				read_role = excluded.read_role,
				read_plan = excluded.read_plan,
				locked = excluded.locked,
				locked_until = excluded.locked_until,
				updated_at = excluded.updated_at`,
			t.Key, t.Kind, t.Name, t.Title, t.ReadRole, t.ReadPlan, t.Locked, t.LockedUntil, now); err != nil {
			return fmt.Errorf("upsert target %q: %w", t.Key, err)
		}
	}
	return tx.Commit()
}

// TouchTarget records the latest message of a target, creating the row when
// needed. unread is added to the unread counter.
func (db *DB) TouchTarget(key, kind, name string, at int64, preview string, unread int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO targets (target_key, kind, name, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_key) DO UPDATE SET
			unread_count = targets.unread_count + excluded.unread_count,
			last_message_preview = CASE WHEN excluded.last_message_at >= targets.last_message_at THEN excluded.last_message_preview ELSE targets.last_message_preview END,
			last_message_at = MAX(targets.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		key, kind, name, unread, at, preview, now)
	return err
}

// MarkRead clears the unread counter of a target.
func (db *DB) MarkRead(key string) error {
	_, err := db.Exec(`UPDATE targets SET unread_count = 0 WHERE target_key = ?`, key)
	return err
}

// ListTargets returns targets with channels first, then by latest activity.
func (db *DB) ListTargets() ([]Target, error) {
	rows, err := db.Query(`
		SELECT target_key, kind, name, title, read_role, read_plan, locked, locked_until,
			unread_count, last_message_at, last_message_preview
		FROM targets
		ORDER BY kind = 'dm', last_message_at DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.Key, &t.Kind, &t.Name, &t.Title, &t.ReadRole, &t.ReadPlan, &t.Locked, &t.LockedUntil,
			&t.UnreadCount, &t.LastMessageAt, &t.LastMessagePreview); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTarget returns a target by key, or nil when unknown.
func (db *DB) GetTarget(key string) (*Target, error) {
	var t Target
	err := db.QueryRow(`
		SELECT target_key, kind, name, title, read_role, read_plan, locked, locked_until,
			unread_count, last_message_at, last_message_preview
		FROM targets WHERE target_key = ?`, key).
		Scan(&t.Key, &t.Kind, &t.Name, &t.Title, &t.ReadRole, &t.ReadPlan, &t.Locked, &t.LockedUntil,
			&t.UnreadCount, &t.LastMessageAt, &t.LastMessagePreview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetState stores a small named value, such as the last active target.
func (db *DB) SetState(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO kv_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetState returns a value stored with SetState, or "" when absent.
func (db *DB) GetState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// TargetCount returns the number of cached targets.
func (db *DB) TargetCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM targets`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
