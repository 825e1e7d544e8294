package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QueueOutbox adds a message to the send outbox. Queuing an existing temp id
// again resets it to queued, which is how a failed send is retried.
func (db *DB) QueueOutbox(tempID, targetKey, text string, attachments []string) error {
	atts, err := encodeKeys(attachments)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO outbox (temp_id, target_key, text, attachments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(temp_id) DO UPDATE SET
			status = 'queued',
			error = '',
			updated_at = excluded.updated_at`,
		tempID, targetKey, text, atts, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status. It reports
// false when the entry was not queued, so two drainers cannot both claim it.
func (db *DB) MarkOutboxSending(tempID string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE temp_id = ? AND status = 'queued'`, now, tempID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message id.
func (db *DB) MarkOutboxSent(tempID, serverID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_id = ?, updated_at = ? WHERE temp_id = ?`, serverID, now, tempID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(tempID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error = ?, updated_at = ? WHERE temp_id = ?`, errMsg, now, tempID)
	return err
}

// RequeueSending puts entries left in 'sending' by a crashed daemon back in
// the queue.
func (db *DB) RequeueSending() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'queued', updated_at = ? WHERE status = 'sending'`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingOutbox returns outbox entries that are still queued.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	return db.outboxByStatus(OutboxQueued)
}

// FailedOutbox returns entries whose last attempt failed.
func (db *DB) FailedOutbox() ([]OutboxEntry, error) {
	return db.outboxByStatus(OutboxFailed)
}

// GetOutbox returns one entry by temp id, or nil.
func (db *DB) GetOutbox(tempID string) (*OutboxEntry, error) {
	var e OutboxEntry
	var atts []byte
	err := db.QueryRow(`
		SELECT seq, temp_id, target_key, text, attachments, status, error, server_id
		FROM outbox WHERE temp_id = ?`, tempID).
		Scan(&e.Seq, &e.TempID, &e.TargetKey, &e.Text, &atts, &e.Status, &e.Error, &e.ServerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.Attachments, err = decodeKeys(atts); err != nil {
		return nil, err
	}
	return &e, nil
}

// PruneOutbox deletes sent entries older than the cutoff.
func (db *DB) PruneOutbox(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := db.Exec(`DELETE FROM outbox WHERE status = 'sent' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) outboxByStatus(status string) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT seq, temp_id, target_key, text, attachments, status, error, server_id
		FROM outbox WHERE status = ? ORDER BY created_at ASC, seq ASC`, status)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var atts []byte
		if err := rows.Scan(&e.Seq, &e.TempID, &e.TargetKey, &e.Text, &atts, &e.Status, &e.Error, &e.ServerID); err != nil {
			return nil, err
		}
		if e.Attachments, err = decodeKeys(atts); err != nil {
			return nil, fmt.Errorf("outbox %s: %w", e.TempID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
