package store

// SearchMessages performs a full-text search on message text and sender
// names. An empty targetKey searches every target.
func (db *DB) SearchMessages(query string, targetKey string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.seq, m.target_key, m.id, m.client_id, m.text, m.user_name, m.user_email,
		       m.created_at, m.attachments,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.seq = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if targetKey != "" {
		q += " AND m.target_key = ?"
		args = append(args, targetKey)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		m, err := scanMessage(rows.Scan, &r.Snippet)
		if err != nil {
			return nil, err
		}
		r.Message = m
		results = append(results, r)
	}
	return results, rows.Err()
}
