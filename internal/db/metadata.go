package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryanm101/bundlereg/internal/registry"
)

// SaveMetadata writes registry entries to the snapshot. A stored row is only
// replaced by a strictly fresher record. It returns the number of rows written.
func (db *DB) SaveMetadata(ctx context.Context, entries []registry.Entry) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bundle_metadata (id, name, author, description, error, last_updated, doc, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM bundle_metadata))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			author = excluded.author,
			description = excluded.description,
			error = excluded.error,
			last_updated = excluded.last_updated,
			doc = excluded.doc,
			stored_at = CURRENT_TIMESTAMP
		WHERE excluded.last_updated > bundle_metadata.last_updated
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare metadata upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	written := 0
	for _, e := range entries {
		doc, err := json.Marshal(e.BundleMetadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode metadata %q: %w", e.ID, err)
		}

		var errMsg sql.NullString
		if e.Error != nil {
			errMsg = sql.NullString{String: *e.Error, Valid: true}
		}

		res, err := stmt.ExecContext(ctx, e.ID, e.Name, e.Author, e.Description, errMsg, e.LastUpdated, string(doc))
		if err != nil {
			return 0, fmt.Errorf("failed to save metadata %q: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit metadata: %w", err)
	}
	return written, nil
}

// LoadMetadata returns the stored snapshot in registry iteration order.
func (db *DB) LoadMetadata(ctx context.Context) ([]registry.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, doc FROM bundle_metadata ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []registry.Entry
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		var md registry.BundleMetadata
		if err := json.Unmarshal([]byte(doc), &md); err != nil {
			return nil, fmt.Errorf("failed to decode stored metadata %q: %w", id, err)
		}
		entries = append(entries, registry.Entry{ID: id, BundleMetadata: md})
	}
	return entries, rows.Err()
}

// SourceStatus is the last recorded sync outcome of one metadata source.
type SourceStatus struct {
	URL          string    `json:"url"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	Entries      int       `json:"entries"`
	LastError    string    `json:"last_error,omitempty"`
}

// RecordSync stores the outcome of syncing one source.
func (db *DB) RecordSync(ctx context.Context, url string, entries int, syncErr error) error {
	var errMsg sql.NullString
	if syncErr != nil {
		errMsg = sql.NullString{String: syncErr.Error(), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_sources (url, last_synced_at, entries, last_error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			entries = excluded.entries,
			last_error = excluded.last_error
	`, url, time.Now().Unix(), entries, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record sync for %s: %w", url, err)
	}
	return nil
}

// ListSyncs returns the recorded source outcomes ordered by URL.
func (db *DB) ListSyncs(ctx context.Context) ([]SourceStatus, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT url, last_synced_at, entries, last_error FROM sync_sources ORDER BY url")
	if err != nil {
		return nil, fmt.Errorf("failed to list syncs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SourceStatus
	for rows.Next() {
		var s SourceStatus
		var syncedAt int64
		var lastErr sql.NullString
		if err := rows.Scan(&s.URL, &syncedAt, &s.Entries, &lastErr); err != nil {
			return nil, fmt.Errorf("failed to scan sync: %w", err)
		}
		s.LastSyncedAt = time.Unix(syncedAt, 0).UTC()
		s.LastError = lastErr.String
		out = append(out, s)
	}
	return out, rows.Err()
}
