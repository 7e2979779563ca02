package subrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/document"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cols = `id, kind, patient_id, episode_id, data, consistency_token, created_by, updated_by, created_at, updated_at`

func ownerColumns(r *Record) (patientID, episodeID *int64) {
	owner := r.OwnerID
	if r.Capabilities().Scope == ScopePatient {
		return &owner, nil
	}
	return nil, &owner
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Kind, err)
	}
	patientID, episodeID := ownerColumns(rec)
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO subrecord (kind, patient_id, episode_id, data, consistency_token, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		rec.Kind, patientID, episodeID, data, rec.ConsistencyToken,
		rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	return db.Translate(err, fmt.Sprintf("create %s", rec.Kind))
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Kind, err)
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE subrecord SET data = $3, consistency_token = $4, updated_by = $5, updated_at = $6
		WHERE id = $1 AND kind = $2`,
		rec.ID, rec.Kind, data, rec.ConsistencyToken, rec.UpdatedBy, rec.UpdatedAt,
	)
	if err != nil {
		return db.Translate(err, fmt.Sprintf("update %s %d", rec.Kind, rec.ID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", rec.Kind, rec.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, kind Kind, id int64) (*Record, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM subrecord WHERE id = $1 AND kind = $2`, id, kind)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, db.Translate(err, fmt.Sprintf("%s %d", kind, id))
	}
	return rec, nil
}

func (r *repoPG) ListByOwner(ctx context.Context, kind Kind, ownerID int64) ([]*Record, error) {
	column := MustLookup(kind).Scope.OwnerKey()
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+cols+` FROM subrecord WHERE kind = $1 AND `+column+` = $2 ORDER BY id`, kind, ownerID)
	if err != nil {
		return nil, db.Translate(err, fmt.Sprintf("list %s", kind))
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repoPG) FindDemographicsByNHSNumber(ctx context.Context, nhs string) (*Record, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM subrecord WHERE kind = $1 AND data->>'nhs_number' = $2`,
		KindDemographics, nhs)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, db.Translate(err, "demographics nhs_number="+nhs)
	}
	return rec, nil
}

func (r *repoPG) FindDemographicsByIdentity(ctx context.Context, dob time.Time, firstName, surname string) (*Record, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+cols+` FROM subrecord
		WHERE kind = $1 AND data->>'date_of_birth' = $2 AND data->>'first_name' = $3 AND data->>'surname' = $4
		ORDER BY id LIMIT 1`,
		KindDemographics, document.FormatDate(dob), firstName, surname)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, db.Translate(err, fmt.Sprintf("demographics %s %s", firstName, surname))
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                  Record
		patientID, episodeID *int64
		data                 []byte
	)
	if err := row.Scan(&rec.ID, &rec.Kind, &patientID, &episodeID, &data, &rec.ConsistencyToken,
		&rec.CreatedBy, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	caps, ok := Lookup(rec.Kind)
	if !ok {
		return nil, fmt.Errorf("unregistered subrecord kind %q", rec.Kind)
	}
	switch {
	case patientID != nil:
		rec.OwnerID = *patientID
	case episodeID != nil:
		rec.OwnerID = *episodeID
	}
	rec.Fields = caps.New()
	if err := json.Unmarshal(data, rec.Fields); err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", rec.Kind, rec.ID, err)
	}
	return &rec, nil
}
