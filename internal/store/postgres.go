package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/db"
	"github.com/sells-group/apply-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_opportunity":  selectOpportunityPG + ` WHERE fingerprint = $1`,
	"read_stage":       `SELECT stage, seq, attempt_counts FROM opportunities WHERE fingerprint = $1`,
	"insert_history":   `INSERT INTO stage_history (id, fingerprint, from_stage, to_stage, outcome, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"pending_followups": `SELECT id, fingerprint, due_at, kind, status, fire_token, fired_at, created_at FROM follow_ups WHERE status = $1 AND due_at <= $2 ORDER BY due_at ASC LIMIT $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	fingerprint    TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL DEFAULT '',
	sources        JSONB NOT NULL,
	title          TEXT NOT NULL,
	company        TEXT NOT NULL,
	location       TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	posted_date    TIMESTAMPTZ,
	salary         TEXT,
	extras         JSONB,
	stage          TEXT NOT NULL DEFAULT 'discovered',
	seq            BIGINT NOT NULL DEFAULT 1,
	attempt_counts JSONB,
	last_error     TEXT,
	retry_at       TIMESTAMPTZ,
	discovered_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage_history (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint TEXT NOT NULL REFERENCES opportunities(fingerprint),
	from_stage  TEXT NOT NULL,
	to_stage    TEXT NOT NULL,
	outcome     TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS artifacts (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint TEXT NOT NULL REFERENCES opportunities(fingerprint),
	stage       TEXT NOT NULL,
	version     INTEGER NOT NULL,
	ref         TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(fingerprint, stage, version)
);

CREATE TABLE IF NOT EXISTS follow_ups (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint TEXT NOT NULL REFERENCES opportunities(fingerprint),
	due_at      TIMESTAMPTZ NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	fire_token  TEXT,
	fired_at    TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_listings (
	source    TEXT NOT NULL,
	source_id TEXT NOT NULL,
	payload   JSONB NOT NULL,
	seen_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const selectOpportunityPG = `
SELECT fingerprint, source_id, sources, title, company, location, description,
       url, posted_date, salary, extras, stage, attempt_counts, last_error,
       discovered_at, updated_at
FROM opportunities`

func (s *PostgresStore) UpsertDiscovered(ctx context.Context, op model.Opportunity, assertNew bool) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	existing, err := scanOpportunityPG(tx.QueryRow(ctx,
		selectOpportunityPG+` WHERE fingerprint = $1 FOR UPDATE`, op.Fingerprint))
	if err != nil && !eris.Is(err, ErrNotFound) {
		return false, err
	}

	now := time.Now().UTC()

	if existing != nil {
		if assertNew {
			return false, eris.Wrapf(ErrDuplicateIdentity, "fingerprint %s", op.Fingerprint)
		}
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
			return false, eris.Wrap(err, "postgres: marshal sources")
		}
		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET sources = $1, posted_date = $2 WHERE fingerprint = $3`,
			sourcesJSON, timePtr(merged.PostedDate), op.Fingerprint,
		); err != nil {
			return false, eris.Wrap(err, "postgres: merge opportunity")
		}
		if err := tx.Commit(ctx); err != nil {
			return false, eris.Wrap(err, "postgres: commit merge")
		}
		return true, nil
	}

	sourcesJSON, err := json.Marshal(op.Sources)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal sources")
	}
	extrasJSON, err := marshalExtrasPG(op)
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO opportunities (
			fingerprint, source_id, sources, title, company, location,
			description, url, posted_date, salary, extras, stage,
			discovered_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		op.Fingerprint, op.SourceID, sourcesJSON, op.Title, op.Company, op.Location,
		op.Description, op.URL, timePtr(op.PostedDate), strPtr(op.Salary), extrasJSON, string(model.StageDiscovered),
		now, now,
	); err != nil {
		return false, eris.Wrap(err, "postgres: insert opportunity")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO stage_history (id, fingerprint, from_stage, to_stage, outcome, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), op.Fingerprint, "", string(model.StageDiscovered), "discovered", now,
	); err != nil {
		return false, eris.Wrap(err, "postgres: insert history")
	}
	if err := bumpStatPG(ctx, tx, "discovered", 1, now); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit upsert")
	}
	return false, nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, fingerprint string) (*model.Opportunity, error) {
	return scanOpportunityPG(s.pool.QueryRow(ctx,
		selectOpportunityPG+` WHERE fingerprint = $1`, fingerprint))
}

func (s *PostgresStore) ListByStage(ctx context.Context, stage model.Stage, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		selectOpportunityPG+` WHERE stage = $1 AND (retry_at IS NULL OR retry_at <= $2)
		 ORDER BY updated_at ASC LIMIT $3`,
		string(stage), time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by stage")
	}
	defer rows.Close()

	var ops []model.Opportunity
	for rows.Next() {
		op, err := scanOpportunityPG(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, eris.Wrap(rows.Err(), "postgres: list by stage iterate")
}

func (s *PostgresStore) ListAll(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx,
		selectOpportunityPG+` ORDER BY discovered_at ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list all")
	}
	defer rows.Close()

	var ops []model.Opportunity
	for rows.Next() {
		op, err := scanOpportunityPG(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, eris.Wrap(rows.Err(), "postgres: list all iterate")
}

func (s *PostgresStore) Transition(ctx context.Context, t Transition) error {
	if !model.CanTransition(t.From, t.To) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", t.From, t.To)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transition")
	}
	defer tx.Rollback(ctx)

	var stage string
	var seq int64
	var countsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT stage, seq, attempt_counts FROM opportunities WHERE fingerprint = $1`,
		t.Fingerprint,
	).Scan(&stage, &seq, &countsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "fingerprint %s", t.Fingerprint)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: read stage")
	}
	if model.Stage(stage) != t.From {
		return eris.Wrapf(ErrStaleStage, "fingerprint %s: have %s, want %s", t.Fingerprint, stage, t.From)
	}

	counts := map[model.Stage]int{}
	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &counts); err != nil {
			return eris.Wrap(err, "postgres: unmarshal attempt counts")
		}
	}
	counts[t.From]++
	newCounts, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attempt counts")
	}

	now := time.Now().UTC()

	tag, err := tx.Exec(ctx,
		`UPDATE opportunities
		 SET stage = $1, seq = seq + 1, attempt_counts = $2, last_error = $3, retry_at = $4, updated_at = $5
		 WHERE fingerprint = $6 AND stage = $7 AND seq = $8`,
		string(t.To), newCounts, strPtr(t.LastError), t.RetryAt, now,
		t.Fingerprint, string(t.From), seq,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update stage")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleStage, "fingerprint %s: lost race on %s", t.Fingerprint, t.From)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO stage_history (id, fingerprint, from_stage, to_stage, outcome, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), t.Fingerprint, string(t.From), string(t.To), t.Outcome, now,
	); err != nil {
		return eris.Wrap(err, "postgres: insert history")
	}

	if t.Artifact != nil {
		if _, err := insertArtifactPG(ctx, tx, t.Fingerprint, t.Artifact.Stage, t.Artifact.Ref, now); err != nil {
			return err
		}
	}

	if t.FollowUp != nil {
		fu := *t.FollowUp
		fu.Fingerprint = t.Fingerprint
		if _, err := insertFollowUpPG(ctx, tx, fu, now); err != nil {
			return err
		}
	}

	if t.To == model.StageSubmitted {
		if err := bumpStatPG(ctx, tx, "submitted", 1, now); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit transition")
}

func (s *PostgresStore) ArchiveRaw(ctx context.Context, listings []model.RawListing) (int64, error) {
	rows := make([][]any, 0, len(listings))
	now := time.Now().UTC()
	for _, l := range listings {
		payload, err := json.Marshal(l)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal raw listing")
		}
		rows = append(rows, []any{l.Source, l.SourceID, payload, now})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "raw_listings",
		Columns:      []string{"source", "source_id", "payload", "seen_at"},
		ConflictKeys: []string{"source", "source_id"},
	}, rows)
}

func (s *PostgresStore) History(ctx context.Context, fingerprint string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fingerprint, from_stage, to_stage, outcome, occurred_at
		 FROM stage_history WHERE fingerprint = $1 ORDER BY occurred_at ASC, id ASC`,
		fingerprint,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: history")
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.FromStage, &e.ToStage, &e.Outcome, &e.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) RecordArtifact(ctx context.Context, fingerprint string, stage model.Stage, ref string) (*model.ArtifactRef, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin artifact")
	}
	defer tx.Rollback(ctx)

	a, err := insertArtifactPG(ctx, tx, fingerprint, stage, ref, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit artifact")
	}
	return a, nil
}

func (s *PostgresStore) LatestArtifact(ctx context.Context, fingerprint string, stage model.Stage) (*model.ArtifactRef, error) {
	var a model.ArtifactRef
	err := s.pool.QueryRow(ctx,
		`SELECT id, fingerprint, stage, version, ref, created_at FROM artifacts
		 WHERE fingerprint = $1 AND stage = $2 ORDER BY version DESC LIMIT 1`,
		fingerprint, string(stage),
	).Scan(&a.ID, &a.Fingerprint, &a.Stage, &a.Version, &a.Ref, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "artifact %s/%s", fingerprint, stage)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest artifact")
	}
	return &a, nil
}

func (s *PostgresStore) ScheduleFollowUp(ctx context.Context, fu model.FollowUp) (*model.FollowUp, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin follow-up")
	}
	defer tx.Rollback(ctx)

	var stage string
	err = tx.QueryRow(ctx, `SELECT stage FROM opportunities WHERE fingerprint = $1`, fu.Fingerprint).Scan(&stage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "fingerprint %s", fu.Fingerprint)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read stage for follow-up")
	}
	if model.Stage(stage) != model.StageSubmitted {
		return nil, eris.Errorf("store: follow-up for %s opportunity %s", stage, fu.Fingerprint)
	}

	created, err := insertFollowUpPG(ctx, tx, fu, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit follow-up")
	}
	return created, nil
}

func (s *PostgresStore) CancelFollowUps(ctx context.Context, fingerprint string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE follow_ups SET status = $1 WHERE fingerprint = $2 AND status = $3`,
		string(model.FollowUpCancelled), fingerprint, string(model.FollowUpPending),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: cancel follow-ups")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) PendingFollowUps(ctx context.Context, before time.Time, limit int) ([]model.FollowUp, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, fingerprint, due_at, kind, status, fire_token, fired_at, created_at
		 FROM follow_ups WHERE status = $1 AND due_at <= $2
		 ORDER BY due_at ASC LIMIT $3`,
		string(model.FollowUpPending), before.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pending follow-ups")
	}
	defer rows.Close()

	var fus []model.FollowUp
	for rows.Next() {
		fu, err := scanFollowUpPG(rows)
		if err != nil {
			return nil, err
		}
		fus = append(fus, *fu)
	}
	return fus, eris.Wrap(rows.Err(), "postgres: pending follow-ups iterate")
}

func (s *PostgresStore) ClaimFollowUp(ctx context.Context, id, token string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin claim")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE follow_ups SET status = $1, fire_token = $2, fired_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.FollowUpFired), token, now, id, string(model.FollowUpPending),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: claim follow-up")
	}
	if tag.RowsAffected() == 0 {
		return false, eris.Wrap(tx.Commit(ctx), "postgres: commit no-op claim")
	}
	if err := bumpStatPG(ctx, tx, "follow_ups_fired", 1, now); err != nil {
		return false, err
	}
	return true, eris.Wrap(tx.Commit(ctx), "postgres: commit claim")
}

func (s *PostgresStore) CountSubmittedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM stage_history WHERE to_stage = $1 AND occurred_at >= $2`,
		string(model.StageSubmitted), since.UTC(),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count submitted")
}

func (s *PostgresStore) CountByStage(ctx context.Context) (map[model.Stage]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT stage, COUNT(*) FROM opportunities GROUP BY stage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by stage")
	}
	defer rows.Close()

	counts := make(map[model.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by stage iterate")
}

func (s *PostgresStore) Stats(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = 30
	}
	start := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	rows, err := s.pool.Query(ctx,
		`SELECT date, discovered, submitted, follow_ups_fired FROM statistics
		 WHERE date >= $1 ORDER BY date ASC`,
		start,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	defer rows.Close()

	var stats []model.DailyStats
	for rows.Next() {
		var st model.DailyStats
		if err := rows.Scan(&st.Date, &st.Discovered, &st.Submitted, &st.FollowUpsFired); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: stats iterate")
}

// tx helpers; every multi-statement write runs inside one pgx.Tx.

func insertArtifactPG(ctx context.Context, tx pgx.Tx, fingerprint string, stage model.Stage, ref string, now time.Time) (*model.ArtifactRef, error) {
	var version int
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE fingerprint = $1 AND stage = $2`,
		fingerprint, string(stage),
	).Scan(&version)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next artifact version")
	}

	a := model.ArtifactRef{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Stage:       stage,
		Version:     version,
		Ref:         ref,
		CreatedAt:   now,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO artifacts (id, fingerprint, stage, version, ref, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Fingerprint, string(a.Stage), a.Version, a.Ref, a.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert artifact")
	}
	return &a, nil
}

func insertFollowUpPG(ctx context.Context, tx pgx.Tx, fu model.FollowUp, now time.Time) (*model.FollowUp, error) {
	if fu.ID == "" {
		fu.ID = uuid.New().String()
	}
	if fu.Status == "" {
		fu.Status = model.FollowUpPending
	}
	fu.CreatedAt = now
	if _, err := tx.Exec(ctx,
		`INSERT INTO follow_ups (id, fingerprint, due_at, kind, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		fu.ID, fu.Fingerprint, fu.DueAt.UTC(), string(fu.Kind), string(fu.Status), fu.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert follow-up")
	}
	return &fu, nil
}

func bumpStatPG(ctx context.Context, tx pgx.Tx, field string, n int, now time.Time) error {
	if err := validStatColumn(field); err != nil {
		return err
	}
	day := now.Format("2006-01-02")
	_, err := tx.Exec(ctx,
		`INSERT INTO statistics (date, `+field+`) VALUES ($1, $2)
		 ON CONFLICT (date) DO UPDATE SET `+field+` = statistics.`+field+` + EXCLUDED.`+field,
		day, n,
	)
	return eris.Wrap(err, "postgres: bump statistic")
}

// scan helpers

func scanOpportunityPG(row pgx.Row) (*model.Opportunity, error) {
	var o model.Opportunity
	var sourcesJSON, extrasJSON, countsJSON []byte
	var postedDate, discoveredAt, updatedAt *time.Time
	var salary, lastError *string

	err := row.Scan(
		&o.Fingerprint, &o.SourceID, &sourcesJSON, &o.Title, &o.Company, &o.Location,
		&o.Description, &o.URL, &postedDate, &salary, &extrasJSON, &o.Stage,
		&countsJSON, &lastError, &discoveredAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan opportunity")
	}

	if err := json.Unmarshal(sourcesJSON, &o.Sources); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal sources")
	}
	if postedDate != nil {
		o.PostedDate = *postedDate
	}
	if discoveredAt != nil {
		o.DiscoveredAt = *discoveredAt
	}
	if updatedAt != nil {
		o.UpdatedAt = *updatedAt
	}
	if salary != nil {
		o.Salary = *salary
	}
	if lastError != nil {
		o.LastError = *lastError
	}
	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &o.AttemptCounts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attempt counts")
		}
	}
	if len(extrasJSON) > 0 {
		var ex opportunityExtras
		if err := json.Unmarshal(extrasJSON, &ex); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extras")
		}
		o.Requirements = ex.Requirements
		o.Benefits = ex.Benefits
	}
	return &o, nil
}

func scanFollowUpPG(row pgx.Row) (*model.FollowUp, error) {
	var fu model.FollowUp
	var token *string
	var firedAt *time.Time
	if err := row.Scan(&fu.ID, &fu.Fingerprint, &fu.DueAt, &fu.Kind, &fu.Status, &token, &firedAt, &fu.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan follow-up")
	}
	if token != nil {
		fu.FireToken = *token
	}
	fu.FiredAt = firedAt
	return &fu, nil
}

func marshalExtrasPG(op model.Opportunity) ([]byte, error) {
	if len(op.Requirements) == 0 && len(op.Benefits) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(opportunityExtras{Requirements: op.Requirements, Benefits: op.Benefits})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal extras")
	}
	return b, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
