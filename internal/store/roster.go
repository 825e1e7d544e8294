package store

import "fmt"

// SaveRoster replaces the persisted roster, keeping the given order.
func (db *DB) SaveRoster(entries []RosterEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM roster`); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.Exec(`
			INSERT INTO roster (email, name, image, role, plan, raw_status, updated_at_ms, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(email) DO NOTHING`,
			e.Email, e.Name, e.Image, e.Role, e.Plan, e.RawStatus, e.UpdatedAtMs, i); err != nil {
			return fmt.Errorf("insert roster %q: %w", e.Email, err)
		}
	}
	return tx.Commit()
}

// LoadRoster returns the persisted roster in saved order.
func (db *DB) LoadRoster() ([]RosterEntry, error) {
	rows, err := db.Query(`
		SELECT email, name, image, role, plan, raw_status, updated_at_ms
		FROM roster ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.Email, &e.Name, &e.Image, &e.Role, &e.Plan, &e.RawStatus, &e.UpdatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
