package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/telemetry"
)

const facilityColumns = `
	id, name, category, address, city,
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lon,
	phone, alt_contact, website, hours,
	services, active, image_refs, updated_at`

const upsertFacilitySQL = `
	INSERT INTO facilities (id, name, category, address, city, location,
	                        phone, alt_contact, website, hours, services, active, image_refs, updated_at)
	VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography,
	        $8, $9, $10, $11, $12, $13, $14, now())
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, category = EXCLUDED.category,
	    address = EXCLUDED.address, city = EXCLUDED.city, location = EXCLUDED.location,
	    phone = EXCLUDED.phone, alt_contact = EXCLUDED.alt_contact, website = EXCLUDED.website,
	    hours = EXCLUDED.hours, services = EXCLUDED.services, active = EXCLUDED.active,
	    image_refs = EXCLUDED.image_refs, updated_at = now()`

// FacilityRepo implements ports.FacilityRepository with pgx and PostGIS.
type FacilityRepo struct {
	db *DB
}

// NewFacilityRepo creates a new FacilityRepo.
func NewFacilityRepo(db *DB) *FacilityRepo {
	return &FacilityRepo{db: db}
}

// UpsertBatch inserts or updates facilities using pgx.Batch.
func (r *FacilityRepo) UpsertBatch(ctx context.Context, records []domain.FacilityRecord) error {
	ctx, span := telemetry.Tracer("postgres").Start(ctx, "FacilityRepo.UpsertBatch")
	defer span.End()
	span.SetAttributes(attribute.Int(telemetry.AttrItemCount, len(records)))

	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range records {
		var phone, alt, website *string
		if f.Contact != nil {
			phone = nullable(f.Contact.Phone)
			alt = nullable(f.Contact.AltContact)
			website = nullable(f.Contact.Website)
		}
		batch.Queue(upsertFacilitySQL,
			f.ID, f.Name, f.Category, f.Address, f.City,
			f.Coordinate.Longitude, f.Coordinate.Latitude,
			phone, alt, website, f.Hours,
			nonNil(f.Services), f.Active, nonNil(f.ImageRefs),
		)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch exec")
			return fmt.Errorf("batch exec %s: %w", records[i].ID, err)
		}
	}
	return nil
}

// GetByID returns a facility by id, or domain.ErrNotFound.
func (r *FacilityRepo) GetByID(ctx context.Context, id string) (*domain.FacilityRecord, error) {
	ctx, span := telemetry.Tracer("postgres").Start(ctx, "FacilityRepo.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrFacilityID, id))

	row := r.db.Pool.QueryRow(ctx, `SELECT `+facilityColumns+` FROM facilities WHERE id = $1`, id)
	f, err := scanFacility(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return f, nil
}

// List returns active facilities matching the filter, ordered by name.
// The name match is a case-insensitive substring test.
func (r *FacilityRepo) List(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error) {
	ctx, span := telemetry.Tracer("postgres").Start(ctx, "FacilityRepo.List")
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrCategory, filter.Category),
		attribute.String(telemetry.AttrSearchText, filter.SearchText),
	)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+facilityColumns+`
		FROM facilities
		WHERE active
		  AND ($1 = '' OR category = $1)
		  AND ($2 = '' OR strpos(lower(name), lower($2)) > 0)
		ORDER BY name, id
	`, filter.Category, filter.SearchText)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	records := []domain.FacilityRecord{}
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrItemCount, len(records)))
	return records, nil
}

// Count returns the number of active facilities.
func (r *FacilityRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM facilities WHERE active`).Scan(&n)
	return n, err
}

func scanFacility(row pgx.Row) (*domain.FacilityRecord, error) {
	var f domain.FacilityRecord
	var phone, alt, website *string
	if err := row.Scan(
		&f.ID, &f.Name, &f.Category, &f.Address, &f.City,
		&f.Coordinate.Latitude, &f.Coordinate.Longitude,
		&phone, &alt, &website, &f.Hours,
		&f.Services, &f.Active, &f.ImageRefs, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if phone != nil || alt != nil || website != nil {
		f.Contact = &domain.Contact{Phone: deref(phone), AltContact: deref(alt), Website: deref(website)}
	}
	if f.Services == nil {
		f.Services = []string{}
	}
	if f.ImageRefs == nil {
		f.ImageRefs = []string{}
	}
	return &f, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
