package store

import (
	"fmt"
	"strings"
	"time"
)

const upsertMessageSQL = `
	INSERT INTO messages (target_key, id, client_id, text, user_name, user_email, created_at, attachments, stored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(target_key, id) DO UPDATE SET
		client_id = CASE WHEN excluded.client_id != '' THEN excluded.client_id ELSE messages.client_id END,
		text = excluded.text,
		user_name = CASE WHEN excluded.user_name != '' THEN excluded.user_name ELSE messages.user_name END,
		attachments = excluded.attachments,
		stored_at = excluded.stored_at`

// UpsertMessage inserts or updates a message (idempotent on target_key + id).
func (db *DB) UpsertMessage(m *Message) error {
	if m.ID == "" {
		return fmt.Errorf("upsert message: missing id")
	}
	atts, err := encodeKeys(m.Attachments)
	if err != nil {
		return err
	}
	_, err = db.Exec(upsertMessageSQL,
		m.TargetKey, m.ID, m.ClientID, m.Text, m.UserName, m.UserEmail, m.CreatedAt, atts, time.Now().UnixMilli())
	return err
}

// UpsertMessages stores a batch for one target in a single transaction.
// Messages without an id are skipped.
func (db *DB) UpsertMessages(targetKey string, msgs []Message) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	n := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		atts, err := encodeKeys(m.Attachments)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(upsertMessageSQL,
			targetKey, m.ID, m.ClientID, m.Text, m.UserName, m.UserEmail, m.CreatedAt, atts, now); err != nil {
			return 0, fmt.Errorf("upsert message %q: %w", m.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return n, nil
}

// DeleteMessages removes ids from a target. Unknown ids are ignored.
func (db *DB) DeleteMessages(targetKey string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, targetKey)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := db.Exec(`DELETE FROM messages WHERE target_key = ? AND id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMessages returns messages for a target using keyset pagination by
// created_at, newest first.
func (db *DB) ListMessages(targetKey string, beforeMs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeMs <= 0 {
		beforeMs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT seq, target_key, id, client_id, text, user_name, user_email, created_at, attachments
		FROM messages
		WHERE target_key = ? AND created_at < ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, targetKey, beforeMs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(scan func(dest ...any) error, extra ...any) (Message, error) {
	var m Message
	var atts []byte
	dest := append([]any{&m.Seq, &m.TargetKey, &m.ID, &m.ClientID, &m.Text, &m.UserName, &m.UserEmail, &m.CreatedAt, &atts}, extra...)
	if err := scan(dest...); err != nil {
		return Message{}, err
	}
	keys, err := decodeKeys(atts)
	if err != nil {
		return Message{}, err
	}
	m.Attachments = keys
	return m, nil
}
