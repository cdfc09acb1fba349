package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"carevrp/internal/model"
	"carevrp/internal/vrp"
)

//go:embed schema.sql
var schemaSQL string

// Postgres keeps instance documents and solve results as JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schemaSQL)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (model.InstanceRecord, error) {
	var (
		id       string
		revision int
		doc      []byte
		created  time.Time
		updated  time.Time
	)
	if err := row.Scan(&id, &revision, &doc, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.InstanceRecord{}, ErrNotFound
		}
		return model.InstanceRecord{}, err
	}
	var d model.Instance
	if err := json.Unmarshal(doc, &d); err != nil {
		return model.InstanceRecord{}, fmt.Errorf("instance %s: %w", id, err)
	}
	return model.InstanceRecord{ID: id, Revision: revision, Instance: d, CreatedAt: created, UpdatedAt: updated}, nil
}

const instanceCols = `id::text, revision, doc, created_at, updated_at`

func (p *Postgres) CreateInstance(ctx context.Context, doc model.Instance) (model.InstanceRecord, error) {
	body, err := json.Marshal(model.FromVRP(doc.ToVRP()))
	if err != nil {
		return model.InstanceRecord{}, err
	}
	row := p.db.QueryRowContext(ctx, `INSERT INTO instances (id, revision, doc) VALUES ($1, 0, $2) RETURNING `+instanceCols, uuid.New(), body)
	return scanInstance(row)
}

func (p *Postgres) GetInstance(ctx context.Context, id string) (model.InstanceRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.InstanceRecord{}, ErrNotFound
	}
	return scanInstance(p.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM instances WHERE id=$1`, id))
}

func (p *Postgres) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+instanceCols+` FROM instances WHERE id::text > $1 ORDER BY id::text LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+instanceCols+` FROM instances ORDER BY id::text LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InstanceRecord{}
	for rows.Next() {
		rec, err := scanInstance(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) EditInstance(ctx context.Context, id string, edit func(in *vrp.Instance) error) (model.InstanceRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.InstanceRecord{}, ErrNotFound
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.InstanceRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanInstance(tx.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM instances WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return model.InstanceRecord{}, err
	}
	in := rec.Instance.ToVRP()
	in.Revision = rec.Revision
	if err := edit(in); err != nil {
		return model.InstanceRecord{}, err
	}
	body, err := json.Marshal(model.FromVRP(in))
	if err != nil {
		return model.InstanceRecord{}, err
	}
	rec, err = scanInstance(tx.QueryRowContext(ctx, `UPDATE instances SET doc=$2, revision=$3, updated_at=now() WHERE id=$1 RETURNING `+instanceCols, id, body, in.Revision))
	if err != nil {
		return model.InstanceRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE solve_runs SET status=$3 WHERE instance_id=$1 AND revision < $2 AND status IN ($4, $5)`,
		id, in.Revision, model.RunStale, model.RunQueued, model.RunDone); err != nil {
		return model.InstanceRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.InstanceRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) DeleteInstance(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM instances WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const runCols = `id::text, instance_id::text, revision, status, COALESCE(stage,''), result, COALESCE(error,''), COALESCE(callback_url,''), COALESCE(secret,''), created_at, started_at, finished_at`

func scanRun(row rowScanner) (model.SolveRun, error) {
	var (
		r        model.SolveRun
		result   []byte
		started  sql.NullTime
		finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.InstanceID, &r.Revision, &r.Status, &r.Stage, &result, &r.Error, &r.CallbackURL, &r.Secret, &r.CreatedAt, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SolveRun{}, ErrNotFound
		}
		return model.SolveRun{}, err
	}
	if len(result) > 0 {
		r.Result = &model.Result{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return model.SolveRun{}, fmt.Errorf("solve %s: %w", r.ID, err)
		}
	}
	if started.Valid {
		r.StartedAt = &started.Time
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

func (p *Postgres) EnqueueSolve(ctx context.Context, instanceID string, req model.SolveRequest) (model.SolveRun, error) {
	if _, err := uuid.Parse(instanceID); err != nil {
		return model.SolveRun{}, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `INSERT INTO solve_runs (id, instance_id, revision, status, callback_url, secret)
        SELECT $1, id, revision, $3, $4, $5 FROM instances WHERE id=$2 RETURNING `+runCols,
		uuid.New(), instanceID, model.RunQueued, nullIfEmpty(req.CallbackURL), nullIfEmpty(req.Secret))
	return scanRun(row)
}

func (p *Postgres) GetSolve(ctx context.Context, id string) (model.SolveRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.SolveRun{}, ErrNotFound
	}
	return scanRun(p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM solve_runs WHERE id=$1`, id))
}

func (p *Postgres) ListSolves(ctx context.Context, instanceID string) ([]model.SolveRun, error) {
	if _, err := uuid.Parse(instanceID); err != nil {
		return []model.SolveRun{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+runCols+` FROM solve_runs WHERE instance_id=$1 ORDER BY created_at`, instanceID)
	if err != nil {
		return nil, err
	}
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]model.SolveRun, error) {
	defer rows.Close()
	out := []model.SolveRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ClaimSolves(ctx context.Context, limit int) ([]model.SolveRun, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := p.db.QueryContext(ctx, `UPDATE solve_runs SET status=$2, started_at=now()
        WHERE id IN (SELECT id FROM solve_runs WHERE status=$3 ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED)
        RETURNING `+runCols, limit, model.RunRunning, model.RunQueued)
	if err != nil {
		return nil, err
	}
	return collectRuns(rows)
}

func (p *Postgres) SetSolveStage(ctx context.Context, id, stage string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE solve_runs SET stage=$2 WHERE id=$1`, id, stage)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FinishSolve(ctx context.Context, id string, res *model.Result, errMsg string) (model.SolveRun, error) {
	var body any
	if res != nil {
		b, err := json.Marshal(res)
		if err != nil {
			return model.SolveRun{}, err
		}
		body = b
	}
	// stale when the instance is gone or its revision moved on
	row := p.db.QueryRowContext(ctx, `UPDATE solve_runs r SET result=$2, error=$3, finished_at=now(),
        status = CASE
            WHEN NOT EXISTS (SELECT 1 FROM instances i WHERE i.id = r.instance_id AND i.revision = r.revision) THEN $4
            WHEN $3 <> '' THEN $5
            ELSE $6 END
        WHERE r.id=$1 RETURNING `+runCols, id, body, errMsg, model.RunStale, model.RunFailed, model.RunDone)
	run, err := scanRun(row)
	if err != nil {
		return model.SolveRun{}, err
	}
	if run.Status == model.RunStale {
		return run, ErrStaleRevision
	}
	return run, nil
}

func (p *Postgres) EnqueueCallback(ctx context.Context, solveID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx, `INSERT INTO callback_deliveries (id, solve_id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, solveID, eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (p *Postgres) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, solve_id::text, event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM callback_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CallbackDelivery{}
	for rows.Next() {
		var d CallbackDelivery
		if err := rows.Scan(&d.ID, &d.SolveID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(1 * time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
