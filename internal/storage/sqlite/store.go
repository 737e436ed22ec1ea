// Package sqlite provides a single-file SQLite implementation of the process
// store for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"corebridge/process-service/internal/process"
)

//go:embed schema.sql
var schema string

const instanceColumns = `process_id, application_id, posting_id, applicant_id,
	current_stage, previous_stage, stage_changed_at, created_at, updated_at`

const historyColumns = `history_id, process_id, application_id, from_stage, to_stage,
	changed_by, reason, note, created_at`

// Store persists process state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serialises writers inside the process.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateInstance inserts the instance and its creation history row atomically.
func (s *Store) CreateInstance(ctx context.Context, inst *process.Instance, entry *process.HistoryEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO recruitment_process (`+instanceColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.ApplicationID, inst.PostingID, inst.ApplicantID,
			string(inst.CurrentStage), nullStage(inst.PreviousStage),
			toMillis(inst.StageChangedAt), toMillis(inst.CreatedAt), toMillis(inst.UpdatedAt),
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE recruitment_process
			 SET current_stage = ?, previous_stage = ?, stage_changed_at = ?, updated_at = ?
			 WHERE process_id = ? AND current_stage = ?`,
			string(next.CurrentStage), nullStage(next.PreviousStage),
			toMillis(next.StageChangedAt), toMillis(next.UpdatedAt),
			next.ID, string(from),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inst, err := scanInstance(tx.QueryRowContext(ctx,
			`SELECT `+instanceColumns+` FROM recruitment_process WHERE application_id = ?`,
			applicationID))
		if errors.Is(err, sql.ErrNoRows) {
			return process.ErrInstanceNotFound
		}
		if err != nil {
			return err
		}
		if inst.CurrentStage != process.StageApplied {
			return process.ErrNotWithdrawable
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recruitment_process WHERE process_id = ? AND current_stage = ?`,
			inst.ID, string(process.StageApplied)); err != nil {
			return err
		}
		deleted = inst
		return nil
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

func insertHistory(ctx context.Context, tx *sql.Tx, e *process.HistoryEntry) error {
	var actor sql.NullInt64
	if e.ActorID != nil {
		actor = sql.NullInt64{Int64: *e.ActorID, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO process_history (`+historyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProcessID, e.ApplicationID,
		nullStage(e.FromStage), string(e.ToStage),
		actor, e.Reason, e.Note, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// GetInstance returns the instance with the given id.
func (s *Store) GetInstance(ctx context.Context, id int64) (*process.Instance, error) {
	return s.getOne(ctx, "get process",
		`SELECT `+instanceColumns+` FROM recruitment_process WHERE process_id = ?`, id)
}

// GetInstanceByApplication returns the instance owned by applicationID.
func (s *Store) GetInstanceByApplication(ctx context.Context, applicationID int64) (*process.Instance, error) {
	return s.getOne(ctx, "get process by application",
		`SELECT `+instanceColumns+` FROM recruitment_process WHERE application_id = ?`, applicationID)
}

// ListByPosting returns a posting's instances, newest first, or only those at
// stage ordered by last stage change when stage is set.
func (s *Store) ListByPosting(ctx context.Context, postingID int64, stage *process.Stage) ([]process.Instance, error) {
	if stage != nil {
		return s.list(ctx, "list by posting and stage",
			`SELECT `+instanceColumns+` FROM recruitment_process
			 WHERE posting_id = ? AND current_stage = ?
			 ORDER BY stage_changed_at DESC, process_id DESC`,
			postingID, string(*stage))
	}
	return s.list(ctx, "list by posting",
		`SELECT `+instanceColumns+` FROM recruitment_process
		 WHERE posting_id = ?
		 ORDER BY created_at DESC, process_id DESC`,
		postingID)
}

// ListByApplicant returns an applicant's instances, newest first.
func (s *Store) ListByApplicant(ctx context.Context, applicantID int64) ([]process.Instance, error) {
	return s.list(ctx, "list by applicant",
		`SELECT `+instanceColumns+` FROM recruitment_process
		 WHERE applicant_id = ?
		 ORDER BY created_at DESC, process_id DESC`,
		applicantID)
}

// ListStale returns instances at stage whose last change is before changedBefore.
func (s *Store) ListStale(ctx context.Context, stage process.Stage, changedBefore time.Time, limit int) ([]process.Instance, error) {
	return s.list(ctx, "list stale",
		`SELECT `+instanceColumns+` FROM recruitment_process
		 WHERE current_stage = ? AND stage_changed_at < ?
		 ORDER BY stage_changed_at ASC, process_id ASC
		 LIMIT ?`,
		string(stage), toMillis(changedBefore), limit)
}

// CountStale counts instances at stage whose last change is before changedBefore.
func (s *Store) CountStale(ctx context.Context, stage process.Stage, changedBefore time.Time) (int64, error) {
	var n int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recruitment_process WHERE current_stage = ? AND stage_changed_at < ?`,
		string(stage), toMillis(changedBefore)).Scan(&n)
	if err != nil {
		return 0, process.Persistence("count stale", err)
	}
	return n, nil
}

// History returns the log of one instance, newest first.
func (s *Store) History(ctx context.Context, processID int64) ([]process.HistoryEntry, error) {
	return s.history(ctx, "history",
		`SELECT `+historyColumns+` FROM process_history
		 WHERE process_id = ?
		 ORDER BY created_at DESC, history_id DESC`, processID)
}

// HistoryByApplication returns the log of the application's current instance,
// newest first. After a withdrawal with no new instance it returns the log of
// the most recently written instance.
func (s *Store) HistoryByApplication(ctx context.Context, applicationID int64) ([]process.HistoryEntry, error) {
	return s.history(ctx, "history by application",
		`SELECT `+historyColumns+` FROM process_history
		 WHERE process_id = COALESCE(
		       (SELECT process_id FROM recruitment_process WHERE application_id = ?1),
		       (SELECT process_id FROM process_history WHERE application_id = ?1
		         ORDER BY created_at DESC, history_id DESC LIMIT 1))
		 ORDER BY created_at DESC, history_id DESC`, applicationID)
}

// CountByStage counts instances per current stage within the filter.
func (s *Store) CountByStage(ctx context.Context, f process.CountFilter) (map[process.Stage]int64, error) {
	query := `SELECT current_stage, COUNT(*) FROM recruitment_process WHERE `
	var args []any
	if f.ApplicantID != nil {
		query += `applicant_id = ?`
		args = append(args, *f.ApplicantID)
	} else {
		if len(f.PostingIDs) == 0 {
			return map[process.Stage]int64{}, nil
		}
		query += `posting_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(f.PostingIDs)), ",") + `)`
		for _, id := range f.PostingIDs {
			args = append(args, id)
		}
	}
	query += ` GROUP BY current_stage`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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

func (s *Store) getOne(ctx context.Context, op, query string, arg int64) (*process.Instance, error) {
	inst, err := scanInstance(s.sqlDB.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, process.ErrInstanceNotFound
	}
	if err != nil {
		return nil, process.Persistence(op, err)
	}
	return inst, nil
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]process.Instance, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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
	rows, err := s.sqlDB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, process.Persistence(op, err)
	}
	defer rows.Close()

	out := make([]process.HistoryEntry, 0)
	for rows.Next() {
		var (
			e       process.HistoryEntry
			from    sql.NullString
			to      string
			actor   sql.NullInt64
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ProcessID, &e.ApplicationID, &from, &to,
			&actor, &e.Reason, &e.Note, &created); err != nil {
			return nil, process.Persistence(op+" scan", err)
		}
		e.FromStage = stagePtr(from)
		e.ToStage = process.Stage(to)
		if actor.Valid {
			id := actor.Int64
			e.ActorID = &id
		}
		e.CreatedAt = fromMillis(created)
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
		inst                        process.Instance
		current                     string
		previous                    sql.NullString
		changedAt, created, updated int64
	)
	if err := row.Scan(&inst.ID, &inst.ApplicationID, &inst.PostingID, &inst.ApplicantID,
		&current, &previous, &changedAt, &created, &updated); err != nil {
		return nil, err
	}
	inst.CurrentStage = process.Stage(current)
	inst.PreviousStage = stagePtr(previous)
	inst.StageChangedAt = fromMillis(changedAt)
	inst.CreatedAt = fromMillis(created)
	inst.UpdatedAt = fromMillis(updated)
	return &inst, nil
}

func nullStage(s *process.Stage) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func stagePtr(ns sql.NullString) *process.Stage {
	if !ns.Valid {
		return nil
	}
	s := process.Stage(ns.String)
	return &s
}

// isDuplicateApplication reports a violation of the application_id unique
// key. Primary key collisions are id source faults and stay persistence errors.
func isDuplicateApplication(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "recruitment_process.application_id")
	}
	return false
}

var _ process.Store = (*Store)(nil)
