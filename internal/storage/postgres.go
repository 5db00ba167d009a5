package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

// ErrSchemaMissing means the applicants table does not exist. The loader runs
// without DDL privileges on that table, so this is fatal and non-retryable:
// an operator must create the schema before ingesting.
var ErrSchemaMissing = errors.New(
	"required table public.applicants is missing; create it with a schema owner before ingesting")

// Insert column order is fixed; the planner and tests depend on it.
const insertApplicantSQL = `
INSERT INTO applicants (
    program,
    comments,
    date_added,
    url,
    status,
    term,
    us_or_international,
    gpa,
    gre,
    gre_v,
    gre_aw,
    degree,
    llm_generated_program,
    llm_generated_university
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// PostgresStore handles all interactions with the relational store: the
// applicants table and the ingestion watermark table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// RequireApplicantsTable verifies the destination table exists using a
// read-only lookup. Returns ErrSchemaMissing when it does not.
func (s *PostgresStore) RequireApplicantsTable(ctx context.Context) error {
	var regclass *string
	err := s.db.QueryRow(ctx, `SELECT to_regclass('public.applicants')`).Scan(&regclass)
	if err != nil {
		return fmt.Errorf("check applicants table: %w", err)
	}
	if regclass == nil {
		return ErrSchemaMissing
	}
	return nil
}

// ExistingURLs returns the set of non-null result URLs already stored, used
// by the planner to deduplicate inserts.
func (s *PostgresStore) ExistingURLs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT url FROM applicants WHERE url IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("fetch existing urls: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan existing url: %w", err)
		}
		urls[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch existing urls: %w", err)
	}
	return urls, nil
}

// LoadPlan executes an insert plan atomically: every row insert and the
// watermark upsert commit together or not at all. Returns the number of rows
// inserted.
func (s *PostgresStore) LoadPlan(ctx context.Context, source string, plan domain.InsertPlan) (int, error) {
	if err := s.RequireApplicantsTable(ctx); err != nil {
		return 0, err
	}
	if err := s.ensureWatermarkTable(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin load transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(plan.Inserts) > 0 {
		batch := &pgx.Batch{}
		for _, rec := range plan.Inserts {
			batch.Queue(insertApplicantSQL,
				rec.Program,
				rec.Comments,
				rec.DateAdded,
				rec.URL,
				rec.Status,
				rec.Term,
				rec.Citizenship,
				rec.GPA,
				rec.GRE,
				rec.GREVerbal,
				rec.GREWriting,
				rec.DegreeLevel,
				rec.LLMProgram,
				rec.LLMUniversity,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert applicant rows: %w", err)
		}
	}

	// The watermark write stays inside the same transaction so it advances
	// only when the insert phase commits.
	if plan.NextWatermark != nil {
		if _, err := tx.Exec(ctx, upsertWatermarkSQL, source, *plan.NextWatermark); err != nil {
			return 0, fmt.Errorf("advance watermark: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit load transaction: %w", err)
	}
	return len(plan.Inserts), nil
}
