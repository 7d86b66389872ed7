package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    winner_criteria TEXT NOT NULL,
    confidence_level REAL NOT NULL,
    test_duration_hours INTEGER NOT NULL DEFAULT 0,
    minimum_sample_size INTEGER NOT NULL DEFAULT 100,
    is_ab_test INTEGER NOT NULL DEFAULT 1,
    subject TEXT NOT NULL DEFAULT '',
    preheader TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    template_data TEXT,
    sent_at INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL,
    name TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    preheader TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    template_data TEXT,
    traffic_share REAL NOT NULL,
    is_winner INTEGER NOT NULL DEFAULT 0,
    total_sent INTEGER NOT NULL DEFAULT 0,
    total_delivered INTEGER NOT NULL DEFAULT 0,
    total_opened INTEGER NOT NULL DEFAULT 0,
    total_clicked INTEGER NOT NULL DEFAULT 0,
    total_unsubscribed INTEGER NOT NULL DEFAULT 0,
    total_bounced INTEGER NOT NULL DEFAULT 0,
    total_complained INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (test_id) REFERENCES tests(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_test ON variants(test_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_one_winner ON variants(test_id) WHERE is_winner = 1;

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    test_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (variant_id) REFERENCES variants(id)
);

CREATE INDEX IF NOT EXISTS idx_events_test ON events(test_id);
CREATE INDEX IF NOT EXISTS idx_events_variant ON events(variant_id);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Concurrent delivery workers write through separate connections;
	// wait out short write locks instead of failing with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTest(ctx context.Context, testID string, cfg TestConfig, variants []VariantConfig) ([]*Variant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateVariantConfigs(variants); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tests (id, name, winner_criteria, confidence_level, test_duration_hours,
		                    minimum_sample_size, is_ab_test, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		testID, cfg.Name, string(cfg.WinnerCriteria), cfg.ConfidenceLevel,
		cfg.TestDurationHours, cfg.MinimumSampleSize, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert test: %w", err)
	}

	created := make([]*Variant, 0, len(variants))
	for _, vc := range variants {
		id := uuid.NewString()

		templateJSON, err := marshalTemplateData(vc.Content.TemplateData)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO variants (id, test_id, name, subject, preheader, body, template_data,
			                       traffic_share, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, testID, vc.Name, vc.Content.Subject, vc.Content.Preheader, vc.Content.Body,
			templateJSON, vc.TrafficShare, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert variant: %w", err)
		}

		created = append(created, &Variant{
			ID:           id,
			TestID:       testID,
			Name:         vc.Name,
			Content:      vc.Content,
			TrafficShare: vc.TrafficShare,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return created, nil
}

func (s *SQLiteStore) GetTest(ctx context.Context, testID string) (*Test, error) {
	var t Test
	var criteria string
	var isABTest int
	var templateJSON sql.NullString
	var sentAt sql.NullInt64
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, winner_criteria, confidence_level, test_duration_hours,
		        minimum_sample_size, is_ab_test, subject, preheader, body, template_data,
		        sent_at, created_at, updated_at
		 FROM tests WHERE id = ?`, testID,
	).Scan(&t.ID, &t.Config.Name, &criteria, &t.Config.ConfidenceLevel,
		&t.Config.TestDurationHours, &t.Config.MinimumSampleSize, &isABTest,
		&t.Content.Subject, &t.Content.Preheader, &t.Content.Body, &templateJSON,
		&sentAt, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	t.Config.WinnerCriteria = WinnerCriteria(criteria)
	t.IsABTest = isABTest != 0
	if templateJSON.Valid && templateJSON.String != "" {
		if err := json.Unmarshal([]byte(templateJSON.String), &t.Content.TemplateData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template data: %w", err)
		}
	}
	if sentAt.Valid {
		ts := time.Unix(sentAt.Int64, 0)
		t.SentAt = &ts
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

func (s *SQLiteStore) ListTests(ctx context.Context) ([]*Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tests: %w", err)
	}

	tests := make([]*Test, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTest(ctx, id)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, nil
}

func (s *SQLiteStore) GetVariants(ctx context.Context, testID string) ([]*Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, name, subject, preheader, body, template_data, traffic_share, is_winner,
		        total_sent, total_delivered, total_opened, total_clicked,
		        total_unsubscribed, total_bounced, total_complained
		 FROM variants WHERE test_id = ? ORDER BY created_at, id`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variants: %w", err)
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		var v Variant
		var templateJSON sql.NullString
		var isWinner int
		err := rows.Scan(&v.ID, &v.TestID, &v.Name, &v.Content.Subject, &v.Content.Preheader,
			&v.Content.Body, &templateJSON, &v.TrafficShare, &isWinner,
			&v.Counters.TotalSent, &v.Counters.TotalDelivered, &v.Counters.TotalOpened,
			&v.Counters.TotalClicked, &v.Counters.TotalUnsubscribed, &v.Counters.TotalBounced,
			&v.Counters.TotalComplained)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.IsWinner = isWinner != 0
		if templateJSON.Valid && templateJSON.String != "" {
			if err := json.Unmarshal([]byte(templateJSON.String), &v.Content.TemplateData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal template data: %w", err)
			}
		}
		variants = append(variants, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variants: %w", err)
	}

	return variants, nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, variantID string, kind EventKind) error {
	delta, err := Delta(kind, 1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	testID, err := s.testIDForVariant(ctx, variantID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (test_id, variant_id, kind, created_at) VALUES (?, ?, ?, ?)`,
		testID, variantID, string(kind), now)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if err := applyDelta(ctx, tx, variantID, testID, delta, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) IncrementCounters(ctx context.Context, variantID string, delta Counters) error {
	testID, err := s.testIDForVariant(ctx, variantID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := applyDelta(ctx, tx, variantID, testID, delta, time.Now().Unix()); err != nil {
		return err
	}

	return tx.Commit()
}

// applyDelta bumps counters with a single relative UPDATE so concurrent
// delivery workers never lose increments to read-modify-write
// interleaving. The first sent increment also stamps the test's
// sent_at, which drives the duration gate.
func applyDelta(ctx context.Context, tx *sql.Tx, variantID, testID string, delta Counters, now int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE variants SET
		    total_sent = total_sent + ?,
		    total_delivered = total_delivered + ?,
		    total_opened = total_opened + ?,
		    total_clicked = total_clicked + ?,
		    total_unsubscribed = total_unsubscribed + ?,
		    total_bounced = total_bounced + ?,
		    total_complained = total_complained + ?,
		    updated_at = ?
		 WHERE id = ?`,
		delta.TotalSent, delta.TotalDelivered, delta.TotalOpened, delta.TotalClicked,
		delta.TotalUnsubscribed, delta.TotalBounced, delta.TotalComplained,
		now, variantID)
	if err != nil {
		return fmt.Errorf("failed to increment counters: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if delta.TotalSent > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE tests SET sent_at = COALESCE(sent_at, ?) WHERE id = ?`, now, testID)
		if err != nil {
			return fmt.Errorf("failed to stamp sent_at: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, testID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, variant_id, kind, created_at
		 FROM events WHERE test_id = ? ORDER BY created_at DESC, id DESC`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var kind string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.TestID, &e.VariantID, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// MarkWinner conditionally promotes a variant. The guarded UPDATE only
// fires when no variant of the test is a winner yet, and the partial
// unique index on (test_id) WHERE is_winner = 1 backs it up, so two
// racing evaluations cannot crown two variants.
func (s *SQLiteStore) MarkWinner(ctx context.Context, testID, variantID string) (bool, error) {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE variants SET is_winner = 1, updated_at = ?
		 WHERE id = ? AND test_id = ?
		   AND NOT EXISTS (SELECT 1 FROM variants w WHERE w.test_id = ? AND w.is_winner = 1)`,
		now, variantID, testID, testID)
	if err != nil {
		return false, fmt.Errorf("failed to mark winner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	// Distinguish "lost the race" from "no such variant".
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM variants WHERE id = ? AND test_id = ?`, variantID, testID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check variant: %w", err)
	}
	if exists == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *SQLiteStore) UpdateCampaignContent(ctx context.Context, testID string, content Content) error {
	templateJSON, err := marshalTemplateData(content.TemplateData)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tests SET subject = ?, preheader = ?, body = ?, template_data = ?, updated_at = ?
		 WHERE id = ?`,
		content.Subject, content.Preheader, content.Body, templateJSON,
		time.Now().Unix(), testID)
	if err != nil {
		return fmt.Errorf("failed to update campaign content: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) testIDForVariant(ctx context.Context, variantID string) (string, error) {
	var testID string
	err := s.db.QueryRowContext(ctx,
		`SELECT test_id FROM variants WHERE id = ?`, variantID).Scan(&testID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve variant: %w", err)
	}
	return testID, nil
}

func marshalTemplateData(data map[string]string) (sql.NullString, error) {
	if len(data) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal template data: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
