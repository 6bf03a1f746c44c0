// Package store persists field definitions, record values and calculation
// outcomes in SQLite. It plays the host's role around the engine: it
// supplies definitions and evaluation contexts and writes outcomes back.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ZanzyTHEbar/calcfield"
	"github.com/ZanzyTHEbar/calcfield/internal/logging"
	_ "modernc.org/sqlite"
)

// ErrRecordNotFound is returned when a record has no stored fields.
var ErrRecordNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS fields (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	formula TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS field_options (
	field_id TEXT NOT NULL,
	option TEXT NOT NULL,
	weight TEXT NOT NULL,
	PRIMARY KEY (field_id, option)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS record_fields (
	record_id TEXT NOT NULL,
	field_id TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 0,
	number TEXT,
	option TEXT,
	error_kind TEXT,
	error_field TEXT,
	PRIMARY KEY (record_id, field_id)
) WITHOUT ROWID;
`

// SQLiteStore is a calcfield host backed by a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logging.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveDefinitions inserts or replaces field definitions and their options.
func (s *SQLiteStore) SaveDefinitions(ctx context.Context, defs calcfield.Definitions) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, def := range defs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO fields (id, kind, formula) VALUES (?, ?, ?)`,
				string(def.ID), string(def.Kind), def.Formula,
			); err != nil {
				return fmt.Errorf("save field %s: %w", def.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM field_options WHERE field_id = ?`, string(def.ID)); err != nil {
				return err
			}
			for option, weight := range def.Options {
				if weight == nil {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO field_options (field_id, option, weight) VALUES (?, ?, ?)`,
					string(def.ID), option, weight.RatString(),
				); err != nil {
					return fmt.Errorf("save option %s of %s: %w", option, def.ID, err)
				}
			}
		}
		s.logger.Debug("definitions saved", map[string]interface{}{"count": len(defs)})
		return nil
	})
}

// Definitions loads every field definition.
func (s *SQLiteStore) Definitions(ctx context.Context) (calcfield.Definitions, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, formula FROM fields`)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	defs := make(calcfield.Definitions)
	for rows.Next() {
		var id, kind, formula string
		if err := rows.Scan(&id, &kind, &formula); err != nil {
			return nil, err
		}
		defs[calcfield.FieldID(id)] = calcfield.Definition{
			ID:      calcfield.FieldID(id),
			Kind:    calcfield.FieldKind(kind),
			Formula: formula,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	optRows, err := s.db.QueryContext(ctx, `SELECT field_id, option, weight FROM field_options`)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var fieldID, option, raw string
		if err := optRows.Scan(&fieldID, &option, &raw); err != nil {
			return nil, err
		}
		def, ok := defs[calcfield.FieldID(fieldID)]
		if !ok {
			continue
		}
		weight, err := calcfield.ParseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("option %s of %s: %w", option, fieldID, err)
		}
		if def.Options == nil {
			def.Options = make(map[string]*big.Rat)
		}
		def.Options[option] = weight
		defs[def.ID] = def
	}
	return defs, optRows.Err()
}

// SaveRecord stores which fields are enabled on a record and their values.
// Rows for fields that are neither enabled nor valued are left untouched.
func (s *SQLiteStore) SaveRecord(ctx context.Context, recordID string, ectx calcfield.EvaluationContext) error {
	ids := make(map[calcfield.FieldID]struct{}, len(ectx.Enabled)+len(ectx.Stored))
	for id := range ectx.Enabled {
		ids[id] = struct{}{}
	}
	for id := range ectx.Stored {
		ids[id] = struct{}{}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for id := range ids {
			var number, option sql.NullString
			if v := ectx.Stored[id]; v != nil {
				if v.Number != nil {
					number = sql.NullString{String: v.Number.RatString(), Valid: true}
				} else if v.Option != "" {
					option = sql.NullString{String: v.Option, Valid: true}
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO record_fields (record_id, field_id, enabled, number, option, error_kind, error_field)
				VALUES (?, ?, ?, ?, ?, NULL, NULL)
				ON CONFLICT (record_id, field_id) DO UPDATE SET
					enabled = excluded.enabled,
					number = excluded.number,
					option = excluded.option,
					error_kind = NULL,
					error_field = NULL`,
				recordID, string(id), ectx.IsEnabled(id), number, option,
			); err != nil {
				return fmt.Errorf("save %s/%s: %w", recordID, id, err)
			}
		}
		return nil
	})
}

// LoadRecord builds the evaluation context of a stored record.
func (s *SQLiteStore) LoadRecord(ctx context.Context, recordID string) (calcfield.EvaluationContext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_id, enabled, number, option FROM record_fields WHERE record_id = ?`, recordID)
	if err != nil {
		return calcfield.EvaluationContext{}, fmt.Errorf("query record %s: %w", recordID, err)
	}
	defer rows.Close()

	ectx := calcfield.NewEvaluationContext()
	found := false
	for rows.Next() {
		found = true
		var (
			fieldID        string
			enabled        bool
			number, option sql.NullString
		)
		if err := rows.Scan(&fieldID, &enabled, &number, &option); err != nil {
			return calcfield.EvaluationContext{}, err
		}
		id := calcfield.FieldID(fieldID)
		if enabled {
			ectx.Enable(id)
		}
		switch {
		case number.Valid:
			n, err := calcfield.ParseNumber(number.String)
			if err != nil {
				return calcfield.EvaluationContext{}, fmt.Errorf("record %s field %s: %w", recordID, fieldID, err)
			}
			ectx.Store(id, calcfield.NumberValue(n))
		case option.Valid:
			ectx.Store(id, calcfield.SelectionValue(option.String))
		}
	}
	if err := rows.Err(); err != nil {
		return calcfield.EvaluationContext{}, err
	}
	if !found {
		return calcfield.EvaluationContext{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	return ectx, nil
}

// SaveOutcome writes calculated values back to the record. A blank clears
// the stored value and keeps its descriptor next to it.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, recordID string, outcome calcfield.Outcome) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range outcome.IDs() {
			res := outcome[id]
			var number, errKind, errField sql.NullString
			if res.Error != nil {
				errKind = sql.NullString{String: string(res.Error.Kind), Valid: true}
				errField = sql.NullString{String: string(res.Error.Field), Valid: res.Error.Field != ""}
			} else if res.Value != nil {
				number = sql.NullString{String: res.Value.RatString(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO record_fields (record_id, field_id, enabled, number, option, error_kind, error_field)
				VALUES (?, ?, 1, ?, NULL, ?, ?)
				ON CONFLICT (record_id, field_id) DO UPDATE SET
					number = excluded.number,
					option = NULL,
					error_kind = excluded.error_kind,
					error_field = excluded.error_field`,
				recordID, string(id), number, errKind, errField,
			); err != nil {
				return fmt.Errorf("save outcome %s/%s: %w", recordID, id, err)
			}
		}
		s.logger.Debug("outcome saved", map[string]interface{}{
			"record_id": recordID,
			"fields":    len(outcome),
		})
		return nil
	})
}

// Blanks returns the descriptors stored for the blanked fields of a record.
func (s *SQLiteStore) Blanks(ctx context.Context, recordID string) (map[calcfield.FieldID]calcfield.ErrorDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_id, error_kind, error_field FROM record_fields
		WHERE record_id = ? AND error_kind IS NOT NULL`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blanks := make(map[calcfield.FieldID]calcfield.ErrorDescriptor)
	for rows.Next() {
		var (
			fieldID, kind string
			errField      sql.NullString
		)
		if err := rows.Scan(&fieldID, &kind, &errField); err != nil {
			return nil, err
		}
		blanks[calcfield.FieldID(fieldID)] = calcfield.ErrorDescriptor{
			Kind:  calcfield.ErrorKind(kind),
			Field: calcfield.FieldID(errField.String),
		}
	}
	return blanks, rows.Err()
}

// RecordIDs lists stored records in ascending order.
func (s *SQLiteStore) RecordIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT record_id FROM record_fields ORDER BY record_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
