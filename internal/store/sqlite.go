package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/apply-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	fingerprint    TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL DEFAULT '',
	sources        TEXT NOT NULL,
	title          TEXT NOT NULL,
	company        TEXT NOT NULL,
	location       TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	posted_date    DATETIME,
	salary         TEXT,
	extras         TEXT,
	stage          TEXT NOT NULL DEFAULT 'discovered',
	seq            INTEGER NOT NULL DEFAULT 1,
	attempt_counts TEXT,
	last_error     TEXT,
	retry_at       DATETIME,
	discovered_at  DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_history (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES opportunities(fingerprint),
	from_stage  TEXT NOT NULL,
	to_stage    TEXT NOT NULL,
	outcome     TEXT NOT NULL DEFAULT '',
	occurred_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES opportunities(fingerprint),
	stage       TEXT NOT NULL,
	version     INTEGER NOT NULL,
	ref         TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	UNIQUE(fingerprint, stage, version)
);

CREATE TABLE IF NOT EXISTS follow_ups (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL REFERENCES opportunities(fingerprint),
	due_at      DATETIME NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	fire_token  TEXT,
	fired_at    DATETIME,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_listings (
	source      TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	payload     TEXT NOT NULL,
	seen_at     DATETIME NOT NULL,
	PRIMARY KEY (source, source_id)
);

CREATE TABLE IF NOT EXISTS statistics (
	date             TEXT PRIMARY KEY,
	discovered       INTEGER NOT NULL DEFAULT 0,
	submitted        INTEGER NOT NULL DEFAULT 0,
	follow_ups_fired INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_opportunities_stage ON opportunities(stage, updated_at);
CREATE INDEX IF NOT EXISTS idx_stage_history_fingerprint ON stage_history(fingerprint, occurred_at);
CREATE INDEX IF NOT EXISTS idx_artifacts_fingerprint ON artifacts(fingerprint, stage);
CREATE INDEX IF NOT EXISTS idx_follow_ups_due ON follow_ups(status, due_at);
CREATE INDEX IF NOT EXISTS idx_follow_ups_fingerprint ON follow_ups(fingerprint);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertDiscovered(ctx context.Context, op model.Opportunity, assertNew bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	existing, err := scanOpportunity(tx.QueryRowContext(ctx, selectOpportunitySQL+` WHERE fingerprint = ?`, op.Fingerprint))
	if err != nil && !eris.Is(err, ErrNotFound) {
		return false, err
	}

	now := time.Now().UTC()

	if existing != nil {
		if assertNew {
			return false, eris.Wrapf(ErrDuplicateIdentity, "fingerprint %s", op.Fingerprint)
		}
		// Merge: union sources, keep earliest posted date. Content stays as
		// first recorded.
		merged := *existing
		for _, src := range op.Sources {
			if !merged.HasSource(src) {
				merged.Sources = append(merged.Sources, src)
			}
		}
		if !op.PostedDate.IsZero() && (merged.PostedDate.IsZero() || op.PostedDate.Before(merged.PostedDate)) {
			merged.PostedDate = op.PostedDate
		}
		sourcesJSON, err := json.Marshal(merged.Sources)
		if err != nil {
			return false, eris.Wrap(err, "sqlite: marshal sources")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE opportunities SET sources = ?, posted_date = ? WHERE fingerprint = ?`,
			string(sourcesJSON), nullTime(merged.PostedDate), op.Fingerprint,
		); err != nil {
			return false, eris.Wrap(err, "sqlite: merge opportunity")
		}
		if err := tx.Commit(); err != nil {
			return false, eris.Wrap(err, "sqlite: commit merge")
		}
		return true, nil
	}

	sourcesJSON, err := json.Marshal(op.Sources)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal sources")
	}
	extrasJSON, err := marshalExtras(op)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO opportunities (
			fingerprint, source_id, sources, title, company, location,
			description, url, posted_date, salary, extras, stage,
			discovered_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.Fingerprint, op.SourceID, string(sourcesJSON), op.Title, op.Company, op.Location,
		op.Description, op.URL, nullTime(op.PostedDate), nullString(op.Salary), extrasJSON, string(model.StageDiscovered),
		now, now,
	); err != nil {
		return false, eris.Wrap(err, "sqlite: insert opportunity")
	}

	if err := insertHistorySQLite(ctx, tx, op.Fingerprint, "", model.StageDiscovered, "discovered", now); err != nil {
		return false, err
	}
	if err := bumpStatSQLite(ctx, tx, "discovered", 1, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit upsert")
	}
	return false, nil
}

func (s *SQLiteStore) GetOpportunity(ctx context.Context, fingerprint string) (*model.Opportunity, error) {
	return scanOpportunity(s.db.QueryRowContext(ctx,
		selectOpportunitySQL+` WHERE fingerprint = ?`, fingerprint))
}

func (s *SQLiteStore) ListByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectOpportunitySQL+` WHERE stage = ? AND (retry_at IS NULL OR retry_at <= ?)
		 ORDER BY updated_at ASC LIMIT ?`,
		string(stage), time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by stage")
	}
	defer rows.Close()

	var ops []model.Opportunity
	for rows.Next() {
		op, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, eris.Wrap(rows.Err(), "sqlite: list by stage iterate")
}

func (s *SQLiteStore) ListAll(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.db.QueryContext(ctx,
		selectOpportunitySQL+` ORDER BY discovered_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list all")
	}
	defer rows.Close()

	var ops []model.Opportunity
	for rows.Next() {
		op, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, eris.Wrap(rows.Err(), "sqlite: list all iterate")
}

func (s *SQLiteStore) Transition(ctx context.Context, t Transition) error {
	if !model.CanTransition(t.From, t.To) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", t.From, t.To)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin transition")
	}
	defer tx.Rollback()

	var stage string
	var seq int64
	var countsJSON sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT stage, seq, attempt_counts FROM opportunities WHERE fingerprint = ?`,
		t.Fingerprint,
	).Scan(&stage, &seq, &countsJSON)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "fingerprint %s", t.Fingerprint)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: read stage")
	}
	if model.Stage(stage) != t.From {
		return eris.Wrapf(ErrStaleStage, "fingerprint %s: have %s, want %s", t.Fingerprint, stage, t.From)
	}

	counts := map[model.Stage]int{}
	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &counts); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal attempt counts")
		}
	}
	counts[t.From]++
	newCounts, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attempt counts")
	}

	now := time.Now().UTC()

	// The seq guard linearizes retry self-edges too, where the stage value
	// alone cannot distinguish the winner from the loser.
	res, err := tx.ExecContext(ctx,
		`UPDATE opportunities
		 SET stage = ?, seq = seq + 1, attempt_counts = ?, last_error = ?, retry_at = ?, updated_at = ?
		 WHERE fingerprint = ? AND stage = ? AND seq = ?`,
		string(t.To), string(newCounts), nullString(t.LastError), nullTimePtr(t.RetryAt), now,
		t.Fingerprint, string(t.From), seq,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update stage")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrStaleStage, "fingerprint %s: lost race on %s", t.Fingerprint, t.From)
	}

	if err := insertHistorySQLite(ctx, tx, t.Fingerprint, t.From, t.To, t.Outcome, now); err != nil {
		return err
	}

	if t.Artifact != nil {
		if _, err := insertArtifactSQLite(ctx, tx, t.Fingerprint, t.Artifact.Stage, t.Artifact.Ref, now); err != nil {
			return err
		}
	}

	if t.FollowUp != nil {
		fu := *t.FollowUp
		fu.Fingerprint = t.Fingerprint
		if _, err := insertFollowUpSQLite(ctx, tx, fu, now); err != nil {
			return err
		}
	}

	if t.To == model.StageSubmitted {
		if err := bumpStatSQLite(ctx, tx, "submitted", 1, now); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit transition")
}

func (s *SQLiteStore) ArchiveRaw(ctx context.Context, listings []model.RawListing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin archive")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var n int64
	for _, l := range listings {
		payload, err := json.Marshal(l)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal raw listing")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO raw_listings (source, source_id, payload, seen_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(source, source_id) DO UPDATE SET payload = excluded.payload, seen_at = excluded.seen_at`,
			l.Source, l.SourceID, string(payload), now,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: archive raw listing")
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit archive")
}

func (s *SQLiteStore) History(ctx context.Context, fingerprint string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, from_stage, to_stage, outcome, occurred_at
		 FROM stage_history WHERE fingerprint = ? ORDER BY occurred_at ASC, id ASC`,
		fingerprint,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: history")
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.FromStage, &e.ToStage, &e.Outcome, &e.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) RecordArtifact(ctx context.Context, fingerprint string, stage model.Stage, ref string) (*model.ArtifactRef, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin artifact")
	}
	defer tx.Rollback()

	a, err := insertArtifactSQLite(ctx, tx, fingerprint, stage, ref, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit artifact")
	}
	return a, nil
}

func (s *SQLiteStore) LatestArtifact(ctx context.Context, fingerprint string, stage model.Stage) (*model.ArtifactRef, error) {
	var a model.ArtifactRef
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, stage, version, ref, created_at FROM artifacts
		 WHERE fingerprint = ? AND stage = ? ORDER BY version DESC LIMIT 1`,
		fingerprint, string(stage),
	).Scan(&a.ID, &a.Fingerprint, &a.Stage, &a.Version, &a.Ref, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "artifact %s/%s", fingerprint, stage)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest artifact")
	}
	return &a, nil
}

func (s *SQLiteStore) ScheduleFollowUp(ctx context.Context, fu model.FollowUp) (*model.FollowUp, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin follow-up")
	}
	defer tx.Rollback()

	// Follow-ups may only exist for submitted opportunities.
	var stage string
	err = tx.QueryRowContext(ctx, `SELECT stage FROM opportunities WHERE fingerprint = ?`, fu.Fingerprint).Scan(&stage)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "fingerprint %s", fu.Fingerprint)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read stage for follow-up")
	}
	if model.Stage(stage) != model.StageSubmitted {
		return nil, eris.Errorf("store: follow-up for %s opportunity %s", stage, fu.Fingerprint)
	}

	created, err := insertFollowUpSQLite(ctx, tx, fu, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit follow-up")
	}
	return created, nil
}

func (s *SQLiteStore) CancelFollowUps(ctx context.Context, fingerprint string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE follow_ups SET status = ? WHERE fingerprint = ? AND status = ?`,
		string(model.FollowUpCancelled), fingerprint, string(model.FollowUpPending),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: cancel follow-ups")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) PendingFollowUps(ctx context.Context, before time.Time, limit int) ([]model.FollowUp, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, due_at, kind, status, fire_token, fired_at, created_at
		 FROM follow_ups WHERE status = ? AND due_at <= ?
		 ORDER BY due_at ASC LIMIT ?`,
		string(model.FollowUpPending), before.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pending follow-ups")
	}
	defer rows.Close()

	var fus []model.FollowUp
	for rows.Next() {
		fu, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		fus = append(fus, *fu)
	}
	return fus, eris.Wrap(rows.Err(), "sqlite: pending follow-ups iterate")
}

func (s *SQLiteStore) ClaimFollowUp(ctx context.Context, id, token string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE follow_ups SET status = ?, fire_token = ?, fired_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.FollowUpFired), token, now, id, string(model.FollowUpPending),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim follow-up")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, tx.Commit()
	}
	if err := bumpStatSQLite(ctx, tx, "follow_ups_fired", 1, now); err != nil {
		return false, err
	}
	return true, eris.Wrap(tx.Commit(), "sqlite: commit claim")
}

func (s *SQLiteStore) CountSubmittedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stage_history WHERE to_stage = ? AND occurred_at >= ?`,
		string(model.StageSubmitted), since.UTC(),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count submitted")
}

func (s *SQLiteStore) CountByStage(ctx context.Context) (map[model.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(*) FROM opportunities GROUP BY stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by stage")
	}
	defer rows.Close()

	counts := make(map[model.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by stage iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = 30
	}
	start := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, discovered, submitted, follow_ups_fired FROM statistics
		 WHERE date >= ? ORDER BY date ASC`,
		start,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	defer rows.Close()

	var stats []model.DailyStats
	for rows.Next() {
		var st model.DailyStats
		if err := rows.Scan(&st.Date, &st.Discovered, &st.Submitted, &st.FollowUpsFired); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: stats iterate")
}

// tx helpers

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertHistorySQLite(ctx context.Context, tx execQuerier, fingerprint string, from, to model.Stage, outcome string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO stage_history (id, fingerprint, from_stage, to_stage, outcome, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), fingerprint, string(from), string(to), outcome, now,
	)
	return eris.Wrap(err, "sqlite: insert history")
}

func insertArtifactSQLite(ctx context.Context, tx execQuerier, fingerprint string, stage model.Stage, ref string, now time.Time) (*model.ArtifactRef, error) {
	var version int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE fingerprint = ? AND stage = ?`,
		fingerprint, string(stage),
	).Scan(&version)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: next artifact version")
	}

	a := model.ArtifactRef{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Stage:       stage,
		Version:     version,
		Ref:         ref,
		CreatedAt:   now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artifacts (id, fingerprint, stage, version, ref, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Fingerprint, string(a.Stage), a.Version, a.Ref, a.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert artifact")
	}
	return &a, nil
}

func insertFollowUpSQLite(ctx context.Context, tx execQuerier, fu model.FollowUp, now time.Time) (*model.FollowUp, error) {
	if fu.ID == "" {
		fu.ID = uuid.New().String()
	}
	if fu.Status == "" {
		fu.Status = model.FollowUpPending
	}
	fu.CreatedAt = now
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO follow_ups (id, fingerprint, due_at, kind, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fu.ID, fu.Fingerprint, fu.DueAt.UTC(), string(fu.Kind), string(fu.Status), fu.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert follow-up")
	}
	return &fu, nil
}

func bumpStatSQLite(ctx context.Context, tx execQuerier, field string, n int, now time.Time) error {
	if err := validStatColumn(field); err != nil {
		return err
	}
	day := now.Format("2006-01-02")
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO statistics (date, %s) VALUES (?, ?)
		 ON CONFLICT(date) DO UPDATE SET %s = %s + excluded.%s`,
		field, field, field, field),
		day, n,
	)
	return eris.Wrap(err, "sqlite: bump statistic")
}

// scan helpers

const selectOpportunitySQL = `
SELECT fingerprint, source_id, sources, title, company, location, description,
       url, posted_date, salary, extras, stage, attempt_counts, last_error,
       discovered_at, updated_at
FROM opportunities`

type scannable interface {
	Scan(dest ...any) error
}

func scanOpportunity(row scannable) (*model.Opportunity, error) {
	var o model.Opportunity
	var sourcesJSON string
	var postedDate sql.NullTime
	var salary, extras, countsJSON, lastError sql.NullString

	err := row.Scan(
		&o.Fingerprint, &o.SourceID, &sourcesJSON, &o.Title, &o.Company, &o.Location,
		&o.Description, &o.URL, &postedDate, &salary, &extras, &o.Stage,
		&countsJSON, &lastError, &o.DiscoveredAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan opportunity")
	}

	if err := json.Unmarshal([]byte(sourcesJSON), &o.Sources); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal sources")
	}
	if postedDate.Valid {
		o.PostedDate = postedDate.Time
	}
	o.Salary = salary.String
	o.LastError = lastError.String
	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &o.AttemptCounts); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal attempt counts")
		}
	}
	if extras.Valid && extras.String != "" {
		var ex opportunityExtras
		if err := json.Unmarshal([]byte(extras.String), &ex); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal extras")
		}
		o.Requirements = ex.Requirements
		o.Benefits = ex.Benefits
	}
	return &o, nil
}

func scanFollowUp(row scannable) (*model.FollowUp, error) {
	var fu model.FollowUp
	var token sql.NullString
	var firedAt sql.NullTime
	if err := row.Scan(&fu.ID, &fu.Fingerprint, &fu.DueAt, &fu.Kind, &fu.Status, &token, &firedAt, &fu.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "store: scan follow-up")
	}
	fu.FireToken = token.String
	if firedAt.Valid {
		t := firedAt.Time
		fu.FiredAt = &t
	}
	return &fu, nil
}

type opportunityExtras struct {
	Requirements []string `json:"requirements,omitempty"`
	Benefits     []string `json:"benefits,omitempty"`
}

func marshalExtras(op model.Opportunity) (sql.NullString, error) {
	if len(op.Requirements) == 0 && len(op.Benefits) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(opportunityExtras{Requirements: op.Requirements, Benefits: op.Benefits})
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "store: marshal extras")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(*t)
}
