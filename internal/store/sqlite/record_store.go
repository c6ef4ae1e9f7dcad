package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"relctl/internal/release"
)

// RecordStore implements [release.RecordStore] backed by SQLite.
type RecordStore struct {
	DB *sql.DB
}

var _ release.RecordStore = (*RecordStore)(nil)

const recordColumns = `id, namespace, environment, spec, state, outcome, started_at, finished_at,
	previous_good_id, error_kind, error, rollback_error`

func (s *RecordStore) Begin(ctx context.Context, rec release.Record) (release.Record, error) {
	spec, err := json.Marshal(rec.Spec)
	if err != nil {
		return release.Record{}, fmt.Errorf("marshal spec: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var previous string
		err := tx.QueryRowContext(ctx,
			`SELECT record_id FROM current_releases WHERE namespace = ?`, rec.Namespace,
		).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read current pointer: %w", err)
		}
		rec.PreviousGoodID = previous

		_, err = tx.ExecContext(ctx,
			`INSERT INTO release_records (`+recordColumns+`, terminal)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Namespace, rec.Environment.String(), string(spec), string(rec.State),
			string(rec.Outcome), toNanos(rec.StartedAt), toNanos(rec.FinishedAt),
			rec.PreviousGoodID, string(rec.ErrorKind), rec.Error, rec.RollbackError,
			boolInt(rec.Terminal()),
		)
		if err != nil {
			if isUniqueViolation(err) {
				if strings.Contains(err.Error(), "release_records.id") {
					return fmt.Errorf("release record %q already exists: %w", rec.ID, release.ErrInvalidRecord)
				}
				return fmt.Errorf("namespace %q: %w", rec.Namespace, release.ErrReleaseInProgress)
			}
			return fmt.Errorf("insert release record: %w", err)
		}
		return nil
	})
	if err != nil {
		return release.Record{}, err
	}
	return rec, nil
}

func (s *RecordStore) Update(ctx context.Context, rec release.Record) error {
	if rec.State == release.StateSucceeded {
		return fmt.Errorf("record %q: succeeded records must be promoted: %w", rec.ID, release.ErrInvalidRecord)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return updateRecord(ctx, tx, rec)
	})
}

func (s *RecordStore) Promote(ctx context.Context, rec release.Record) error {
	if rec.State != release.StateSucceeded {
		return fmt.Errorf("record %q in state %s cannot be promoted: %w", rec.ID, rec.State, release.ErrInvalidRecord)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateRecord(ctx, tx, rec); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO current_releases (namespace, record_id) VALUES (?, ?)
			 ON CONFLICT (namespace) DO UPDATE SET record_id = excluded.record_id`,
			rec.Namespace, rec.ID,
		)
		if err != nil {
			return fmt.Errorf("move current pointer: %w", err)
		}
		return nil
	})
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec release.Record) error {
	var terminal int
	err := tx.QueryRowContext(ctx,
		`SELECT terminal FROM release_records WHERE id = ?`, rec.ID,
	).Scan(&terminal)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("release record %q: %w", rec.ID, release.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load release record: %w", err)
	}
	if terminal != 0 {
		return fmt.Errorf("release record %q: %w", rec.ID, release.ErrRecordFinalized)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE release_records
		 SET state = ?, outcome = ?, terminal = ?, finished_at = ?, error_kind = ?, error = ?, rollback_error = ?
		 WHERE id = ?`,
		string(rec.State), string(rec.Outcome), boolInt(rec.Terminal()), toNanos(rec.FinishedAt),
		string(rec.ErrorKind), rec.Error, rec.RollbackError, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update release record: %w", err)
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, id string) (release.Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM release_records WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return release.Record{}, fmt.Errorf("release record %q: %w", id, release.ErrNotFound)
	}
	return rec, err
}

func (s *RecordStore) Current(ctx context.Context, namespace string) (release.Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT r.id, r.namespace, r.environment, r.spec, r.state, r.outcome, r.started_at, r.finished_at,
			r.previous_good_id, r.error_kind, r.error, r.rollback_error
		 FROM current_releases c JOIN release_records r ON r.id = c.record_id
		 WHERE c.namespace = ?`, namespace,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return release.Record{}, fmt.Errorf("current release of %q: %w", namespace, release.ErrNotFound)
	}
	return rec, err
}

func (s *RecordStore) InFlight(ctx context.Context, namespace string) (release.Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM release_records WHERE namespace = ? AND terminal = 0`, namespace,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return release.Record{}, fmt.Errorf("in-flight release of %q: %w", namespace, release.ErrNotFound)
	}
	return rec, err
}

func (s *RecordStore) List(ctx context.Context, namespace string) ([]release.Record, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM release_records WHERE namespace = ? ORDER BY started_at, seq`, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list release records: %w", err)
	}
	defer rows.Close()

	var records []release.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *RecordStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (release.Record, error) {
	var (
		rec                       release.Record
		env, spec, state, outcome string
		errorKind                 string
		startedAt, finishedAt     int64
	)
	err := sc.Scan(&rec.ID, &rec.Namespace, &env, &spec, &state, &outcome, &startedAt, &finishedAt,
		&rec.PreviousGoodID, &errorKind, &rec.Error, &rec.RollbackError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return release.Record{}, err
		}
		return release.Record{}, fmt.Errorf("scan release record: %w", err)
	}

	if env != "" {
		if rec.Environment, err = release.ParseEnvironment(env); err != nil {
			return release.Record{}, fmt.Errorf("record %q environment: %w", rec.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(spec), &rec.Spec); err != nil {
		return release.Record{}, fmt.Errorf("unmarshal spec of %q: %w", rec.ID, err)
	}
	rec.State = release.State(state)
	rec.Outcome = release.Outcome(outcome)
	rec.ErrorKind = release.ErrorKind(errorKind)
	rec.StartedAt = fromNanos(startedAt)
	rec.FinishedAt = fromNanos(finishedAt)
	return rec, nil
}
