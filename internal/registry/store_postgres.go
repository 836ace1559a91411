package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	txcontext "landregistry/pkg/platform/tx"
)

// PostgresParcelStore persists parcels in PostgreSQL.
type PostgresParcelStore struct {
	db *sql.DB
}

// NewPostgresParcelStore constructs a PostgreSQL-backed parcel store.
func NewPostgresParcelStore(db *sql.DB) *PostgresParcelStore {
	return &PostgresParcelStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// execer returns the ambient transaction when the caller opened one (case
// approval writes parcels, deeds, and the case in a single boundary),
// otherwise the pooled handle.
func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if sqlTx, ok := txcontext.From(ctx); ok {
		return sqlTx
	}
	return db
}

// Migrate applies the registry schema. Idempotent; called at startup.
func (s *PostgresParcelStore) Migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS parcels (
			id             UUID PRIMARY KEY,
			parcel_number  TEXT NOT NULL UNIQUE,
			locality       TEXT NOT NULL,
			area_sq_meters DOUBLE PRECISION NOT NULL,
			owner_id       UUID NOT NULL,
			registered_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS parcels_owner_idx ON parcels (owner_id);
		CREATE TABLE IF NOT EXISTS deeds (
			id          UUID PRIMARY KEY,
			deed_number TEXT NOT NULL UNIQUE,
			parcel_id   UUID NOT NULL REFERENCES parcels (id),
			holder_id   UUID NOT NULL,
			case_id     UUID NOT NULL,
			seal_hash   TEXT NOT NULL,
			issued_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS deeds_holder_idx ON deeds (holder_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	return nil
}

func (s *PostgresParcelStore) Save(ctx context.Context, parcel Parcel) error {
	query := `
		INSERT INTO parcels (id, parcel_number, locality, area_sq_meters, owner_id, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET parcel_number = EXCLUDED.parcel_number,
		    locality = EXCLUDED.locality,
		    area_sq_meters = EXCLUDED.area_sq_meters,
		    owner_id = EXCLUDED.owner_id
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(parcel.ID),
		parcel.ParcelNumber,
		parcel.Locality,
		parcel.AreaSqMeters,
		uuid.UUID(parcel.Owner),
		parcel.RegisteredAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("parcel number %q already registered: %w", parcel.ParcelNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("save parcel: %w", err)
	}
	return nil
}

func (s *PostgresParcelStore) FindByID(ctx context.Context, id domain.ParcelID) (Parcel, error) {
	query := `
		SELECT id, parcel_number, locality, area_sq_meters, owner_id, registered_at
		FROM parcels WHERE id = $1
	`
	parcel, err := scanParcel(execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Parcel{}, fmt.Errorf("parcel %s: %w", id, sentinel.ErrNotFound)
		}
		return Parcel{}, fmt.Errorf("find parcel by id: %w", err)
	}
	return parcel, nil
}

func (s *PostgresParcelStore) ListByOwner(ctx context.Context, owner domain.ActorID) ([]Parcel, error) {
	query := `
		SELECT id, parcel_number, locality, area_sq_meters, owner_id, registered_at
		FROM parcels WHERE owner_id = $1
		ORDER BY parcel_number
	`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(owner))
	if err != nil {
		return nil, fmt.Errorf("list parcels by owner: %w", err)
	}
	defer rows.Close()
	return collectParcels(rows)
}

func (s *PostgresParcelStore) Search(ctx context.Context, query string) ([]Parcel, error) {
	needle := "%" + query + "%"
	const sqlQuery = `
		SELECT id, parcel_number, locality, area_sq_meters, owner_id, registered_at
		FROM parcels
		WHERE parcel_number ILIKE $1 OR locality ILIKE $1
		ORDER BY parcel_number
	`
	rows, err := execer(ctx, s.db).QueryContext(ctx, sqlQuery, needle)
	if err != nil {
		return nil, fmt.Errorf("search parcels: %w", err)
	}
	defer rows.Close()
	return collectParcels(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (Parcel, error) {
	var (
		parcel       Parcel
		id           uuid.UUID
		owner        uuid.UUID
		registeredAt time.Time
	)
	err := row.Scan(&id, &parcel.ParcelNumber, &parcel.Locality, &parcel.AreaSqMeters, &owner, &registeredAt)
	if err != nil {
		return Parcel{}, err
	}
	parcel.ID = domain.ParcelID(id)
	parcel.Owner = domain.ActorID(owner)
	parcel.RegisteredAt = registeredAt
	return parcel, nil
}

func collectParcels(rows *sql.Rows) ([]Parcel, error) {
	var parcels []Parcel
	for rows.Next() {
		parcel, err := scanParcel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parcel row: %w", err)
		}
		parcels = append(parcels, parcel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parcel rows: %w", err)
	}
	return parcels, nil
}

// PostgresDeedStore persists deeds in PostgreSQL.
type PostgresDeedStore struct {
	db *sql.DB
}

// NewPostgresDeedStore constructs a PostgreSQL-backed deed store.
func NewPostgresDeedStore(db *sql.DB) *PostgresDeedStore {
	return &PostgresDeedStore{db: db}
}

func (s *PostgresDeedStore) Save(ctx context.Context, deed Deed) error {
	query := `
		INSERT INTO deeds (id, deed_number, parcel_id, holder_id, case_id, seal_hash, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(deed.ID),
		deed.DeedNumber,
		uuid.UUID(deed.ParcelID),
		uuid.UUID(deed.Holder),
		uuid.UUID(deed.CaseID),
		deed.SealHash,
		deed.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("save deed: %w", err)
	}
	return nil
}

func (s *PostgresDeedStore) FindByID(ctx context.Context, id domain.DeedID) (Deed, error) {
	query := `
		SELECT id, deed_number, parcel_id, holder_id, case_id, seal_hash, issued_at
		FROM deeds WHERE id = $1
	`
	deed, err := scanDeed(execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Deed{}, fmt.Errorf("deed %s: %w", id, sentinel.ErrNotFound)
		}
		return Deed{}, fmt.Errorf("find deed by id: %w", err)
	}
	return deed, nil
}

func (s *PostgresDeedStore) ListByHolder(ctx context.Context, holder domain.ActorID) ([]Deed, error) {
	query := `
		SELECT id, deed_number, parcel_id, holder_id, case_id, seal_hash, issued_at
		FROM deeds WHERE holder_id = $1
		ORDER BY deed_number
	`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(holder))
	if err != nil {
		return nil, fmt.Errorf("list deeds by holder: %w", err)
	}
	defer rows.Close()
	var deeds []Deed
	for rows.Next() {
		deed, err := scanDeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deed row: %w", err)
		}
		deeds = append(deeds, deed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deed rows: %w", err)
	}
	return deeds, nil
}

func scanDeed(row rowScanner) (Deed, error) {
	var (
		deed     Deed
		id       uuid.UUID
		parcelID uuid.UUID
		holder   uuid.UUID
		caseID   uuid.UUID
		issuedAt time.Time
	)
	err := row.Scan(&id, &deed.DeedNumber, &parcelID, &holder, &caseID, &deed.SealHash, &issuedAt)
	if err != nil {
		return Deed{}, err
	}
	deed.ID = domain.DeedID(id)
	deed.ParcelID = domain.ParcelID(parcelID)
	deed.Holder = domain.ActorID(holder)
	deed.CaseID = domain.CaseID(caseID)
	deed.IssuedAt = issuedAt
	return deed, nil
}
