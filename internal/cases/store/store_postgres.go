package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landregistry/internal/cases/models"
	"landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// Postgres persists cases in PostgreSQL. The data bag (checklist included)
// is stored as one JSONB document: storage treats it as opaque, only the
// checklist policy and the engine interpret it.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed case store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Migrate applies the cases schema. Idempotent; called at startup.
func (s *Postgres) Migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS cases (
			id          UUID PRIMARY KEY,
			case_type   TEXT NOT NULL,
			status      TEXT NOT NULL,
			initiator   UUID NOT NULL,
			parcel_id   UUID,
			data        JSONB NOT NULL DEFAULT '{}'::jsonb,
			version     BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS cases_status_idx ON cases (status, created_at DESC);
		CREATE INDEX IF NOT EXISTS cases_initiator_idx ON cases (initiator, created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate cases schema: %w", err)
	}
	return nil
}

const caseColumns = "id, case_type, status, initiator, parcel_id, data, version, created_at, updated_at"

func (s *Postgres) Create(ctx context.Context, c *models.Case) error {
	dataBytes, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("marshal case data: %w", err)
	}
	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		string(c.Type),
		string(c.Status),
		uuid.UUID(c.Initiator),
		parcelIDOrNil(c.RelatedParcel),
		dataBytes,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("case %s already exists: %w", c.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id))
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("case %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find case by id: %w", err)
	}
	return c, nil
}

// Update relies on the version predicate for optimistic concurrency: zero
// rows affected means either the id is unknown or another transition
// already persisted a newer version.
func (s *Postgres) Update(ctx context.Context, c *models.Case) (*models.Case, error) {
	dataBytes, err := json.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal case data: %w", err)
	}
	query := `
		UPDATE cases
		SET status = $1, parcel_id = $2, data = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		string(c.Status),
		parcelIDOrNil(c.RelatedParcel),
		dataBytes,
		c.UpdatedAt,
		uuid.UUID(c.ID),
		c.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update case: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update case rows affected: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, c.ID); findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("case %s version %d superseded: %w", c.ID, c.Version, sentinel.ErrStale)
	}
	updated := c.Clone()
	updated.Version++
	return updated, nil
}

func (s *Postgres) ListByStatuses(ctx context.Context, statuses []models.CaseStatus) ([]*models.Case, error) {
	raw := make([]string, len(statuses))
	for i, status := range statuses {
		raw[i] = string(status)
	}
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE status = ANY($1)
		ORDER BY created_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("list cases by status: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

func (s *Postgres) ListByInitiator(ctx context.Context, initiator domain.ActorID) ([]*models.Case, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE initiator = $1
		ORDER BY created_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(initiator))
	if err != nil {
		return nil, fmt.Errorf("list cases by initiator: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c         models.Case
		id        uuid.UUID
		caseType  string
		status    string
		initiator uuid.UUID
		parcelID  sql.NullString
		dataBytes []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &caseType, &status, &initiator, &parcelID, &dataBytes, &c.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = domain.CaseID(id)
	c.Type = models.CaseType(caseType)
	c.Status = models.CaseStatus(status)
	c.Initiator = domain.ActorID(initiator)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	if parcelID.Valid {
		parsed, err := uuid.Parse(parcelID.String)
		if err != nil {
			return nil, fmt.Errorf("parse parcel id: %w", err)
		}
		pid := domain.ParcelID(parsed)
		c.RelatedParcel = &pid
	}
	if err := json.Unmarshal(dataBytes, &c.Data); err != nil {
		return nil, fmt.Errorf("unmarshal case data: %w", err)
	}
	if c.Data.Checklist == nil {
		c.Data.Checklist = map[models.ChecklistKey]bool{}
	}
	return &c, nil
}

func collectCases(rows *sql.Rows) ([]*models.Case, error) {
	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case row: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case rows: %w", err)
	}
	return cases, nil
}

func parcelIDOrNil(id *domain.ParcelID) any {
	if id == nil {
		return nil
	}
	return uuid.UUID(*id)
}
