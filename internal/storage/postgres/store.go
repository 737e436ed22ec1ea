// Package postgres persists workflow instances and the transition log in
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"corebridge/process-service/internal/process"
)

//go:embed schema.sql
var schema string

const (
	uniqueViolation         = "23505"
	applicationIDConstraint = "recruitment_process_application_id_key"
)

const instanceColumns = `process_id, application_id, posting_id, applicant_id,
	current_stage, previous_stage, stage_changed_at, created_at, updated_at`

const historyColumns = `history_id, process_id, application_id, from_stage, to_stage,
	changed_by, reason, note, created_at`

// Store implements process.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables, indexes and the append-only trigger.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// CreateInstance inserts the instance and its creation history row atomically.
func (s *Store) CreateInstance(ctx context.Context, inst *process.Instance, entry *process.HistoryEntry) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO recruitment_process (`+instanceColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			inst.ID, inst.ApplicationID, inst.PostingID, inst.ApplicantID,
			string(inst.CurrentStage), stageText(inst.PreviousStage),
			inst.StageChangedAt, inst.CreatedAt, inst.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
	if err != nil {
		if isDuplicateApplication(err) {
			return process.ErrDuplicateApplication
		}
		return process.Persistence("create process", err)
	}
	return nil
}

// ApplyTransition updates the instance only while it is still at from and
// appends entry in the same transaction.
func (s *Store) ApplyTransition(ctx context.Context, next *process.Instance, from process.Stage, entry *process.HistoryEntry) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE recruitment_process
			 SET current_stage    = $1,
			     previous_stage   = $2,
			     stage_changed_at = $3,
			     updated_at       = $4
			 WHERE process_id = $5 AND current_stage = $6`,
			string(next.CurrentStage), stageText(next.PreviousStage),
			next.StageChangedAt, next.UpdatedAt,
			next.ID, string(from),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return process.ErrStageConflict
		}
		return insertHistory(ctx, tx, entry)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrStageConflict):
		return err
	default:
		return process.Persistence("apply transition", err)
	}
}

// DeleteApplied removes a still-APPLIED instance. History rows stay.
func (s *Store) DeleteApplied(ctx context.Context, applicationID int64) (*process.Instance, error) {
	var deleted *process.Instance
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		inst, err := scanInstance(tx.QueryRow(ctx,
			`DELETE FROM recruitment_process
			 WHERE application_id = $1 AND current_stage = $2
			 RETURNING `+instanceColumns,
			applicationID, string(process.StageApplied),
		))
		if err == nil {
			deleted = inst
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM recruitment_process WHERE application_id = $1)`,
			applicationID,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return process.ErrNotWithdrawable
		}
		return process.ErrInstanceNotFound
	})
	switch {
	case err == nil:
		return deleted, nil
	case errors.Is(err, process.ErrNotWithdrawable), errors.Is(err, process.ErrInstanceNotFound):
		return nil, err
	default:
		return nil, process.Persistence("withdraw process", err)
	}
}

func insertHistory(ctx context.Context, tx pgx.Tx, e *process.HistoryEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO process_history (`+historyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ProcessID, e.ApplicationID,
		stageText(e.FromStage), string(e.ToStage),
		e.ActorID, e.Reason, e.Note, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// GetInstance returns the instance with the given id.
func (s *Store) GetInstance(ctx context.Context, id int64) (*process.Instance, error) {
	return s.getOne(ctx, "get process",
		`SELECT `+instanceColumns+` FROM recruitment_process WHERE process_id = $1`, id)
}

// GetInstanceByApplication returns the instance owned by applicationID.
func (s *Store) GetInstanceByApplication(ctx context.Context, applicationID int64) (*process.Instance, error) {
	return s.getOne(ctx, "get process by application",
		`SELECT `+instanceColumns+` FROM recruitment_process WHERE application_id = $1`, applicationID)
}

// ListByPosting returns a posting's instances, newest first, or only those at
// stage ordered by last stage change when stage is set.
func (s *Store) ListByPosting(ctx context.Context, postingID int64, stage *process.Stage) ([]process.Instance, error) {
	if stage != nil {
		return s.list(ctx, "list by posting and stage",
			`SELECT `+instanceColumns+` FROM recruitment_process
			 WHERE posting_id = $1 AND current_stage = $2
			 ORDER BY stage_changed_at DESC, process_id DESC`,
			postingID, string(*stage))
	}
	return s.list(ctx, "list by posting",
		`SELECT `+instanceColumns+` FROM recruitment_process
		 WHERE posting_id = $1
		 ORDER BY created_at DESC, process_id DESC`,
		postingID)
}

// ListByApplicant returns an applicant's instances, newest first.
func (s *Store) ListByApplicant(ctx context.Context, applicantID int64) ([]process.Instance, error) {
	return s.list(ctx, "list by applicant",
		`SELECT `+instanceColumns+` FROM recruitment_process
		 WHERE applicant_id = $1
		 ORDER BY created_at DESC, process_id DESC`,
		applicantID)
}

// ListStale returns instances at stage whose last change is before changedBefore.
func (s *Store) ListStale(ctx context.Context, stage process.Stage, changedBefore time.Time, limit int) ([]process.Instance, error) {
	return s.list(ctx, "list stale",
		`SELECT `+instanceColumns+` FROM recruitment_process
		 WHERE current_stage = $1 AND stage_changed_at < $2
		 ORDER BY stage_changed_at ASC, process_id ASC
		 LIMIT $3`,
		string(stage), changedBefore, limit)
}

// CountStale counts instances at stage whose last change is before changedBefore.
func (s *Store) CountStale(ctx context.Context, stage process.Stage, changedBefore time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recruitment_process WHERE current_stage = $1 AND stage_changed_at < $2`,
		string(stage), changedBefore).Scan(&n)
	if err != nil {
		return 0, process.Persistence("count stale", err)
	}
	return n, nil
}

// History returns the log of one instance, newest first.
func (s *Store) History(ctx context.Context, processID int64) ([]process.HistoryEntry, error) {
	return s.history(ctx, "history",
		`SELECT `+historyColumns+` FROM process_history
		 WHERE process_id = $1
		 ORDER BY created_at DESC, history_id DESC`, processID)
}

// HistoryByApplication returns the log of the application's current instance,
// newest first. After a withdrawal with no new instance it returns the log of
// the most recently written instance.
func (s *Store) HistoryByApplication(ctx context.Context, applicationID int64) ([]process.HistoryEntry, error) {
	return s.history(ctx, "history by application",
		`SELECT `+historyColumns+` FROM process_history
		 WHERE process_id = COALESCE(
		       (SELECT process_id FROM recruitment_process WHERE application_id = $1),
		       (SELECT process_id FROM process_history WHERE application_id = $1
		         ORDER BY created_at DESC, history_id DESC LIMIT 1))
		 ORDER BY created_at DESC, history_id DESC`, applicationID)
}

// CountByStage counts instances per current stage within the filter.
func (s *Store) CountByStage(ctx context.Context, f process.CountFilter) (map[process.Stage]int64, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if f.ApplicantID != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT current_stage, COUNT(*) FROM recruitment_process
			 WHERE applicant_id = $1 GROUP BY current_stage`, *f.ApplicantID)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT current_stage, COUNT(*) FROM recruitment_process
			 WHERE posting_id = ANY($1) GROUP BY current_stage`, f.PostingIDs)
	}
	if err != nil {
		return nil, process.Persistence("count by stage", err)
	}
	defer rows.Close()

	counts := make(map[process.Stage]int64)
	for rows.Next() {
		var (
			stage string
			n     int64
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, process.Persistence("count by stage scan", err)
		}
		counts[process.Stage(stage)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, process.Persistence("count by stage", err)
	}
	return counts, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) getOne(ctx context.Context, op, query string, arg int64) (*process.Instance, error) {
	inst, err := scanInstance(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, process.ErrInstanceNotFound
	}
	if err != nil {
		return nil, process.Persistence(op, err)
	}
	return inst, nil
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]process.Instance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, process.Persistence(op, err)
	}
	defer rows.Close()

	out := make([]process.Instance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, process.Persistence(op+" scan", err)
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, process.Persistence(op, err)
	}
	return out, nil
}

func (s *Store) history(ctx context.Context, op, query string, arg int64) ([]process.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, process.Persistence(op, err)
	}
	defer rows.Close()

	out := make([]process.HistoryEntry, 0)
	for rows.Next() {
		var (
			e     process.HistoryEntry
			from  pgtype.Text
			to    string
			actor pgtype.Int8
		)
		if err := rows.Scan(&e.ID, &e.ProcessID, &e.ApplicationID, &from, &to,
			&actor, &e.Reason, &e.Note, &e.CreatedAt); err != nil {
			return nil, process.Persistence(op+" scan", err)
		}
		e.FromStage = stagePtr(from)
		e.ToStage = process.Stage(to)
		if actor.Valid {
			id := actor.Int64
			e.ActorID = &id
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, process.Persistence(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*process.Instance, error) {
	var (
		inst     process.Instance
		current  string
		previous pgtype.Text
	)
	if err := row.Scan(&inst.ID, &inst.ApplicationID, &inst.PostingID, &inst.ApplicantID,
		&current, &previous, &inst.StageChangedAt, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.CurrentStage = process.Stage(current)
	inst.PreviousStage = stagePtr(previous)
	inst.StageChangedAt = inst.StageChangedAt.UTC()
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return &inst, nil
}

func stageText(s *process.Stage) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: string(*s), Valid: true}
}

func stagePtr(t pgtype.Text) *process.Stage {
	if !t.Valid {
		return nil
	}
	s := process.Stage(t.String)
	return &s
}

// isDuplicateApplication reports a violation of the application_id unique
// key. Primary key collisions are id source faults and stay persistence errors.
func isDuplicateApplication(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == applicationIDConstraint
}

var _ process.Store = (*Store)(nil)
