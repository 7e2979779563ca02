package care

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const episodeCols = `id, patient_id, category_name, start_date, end_date, active,
	consistency_token, created_by, updated_by, created_at, updated_at`

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO patient (created_at) VALUES ($1) RETURNING id`, p.CreatedAt,
	).Scan(&p.ID)
	return db.Translate(err, "create patient")
}

func (r *repoPG) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, created_at FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, db.Translate(err, fmt.Sprintf("patient %d", id))
	}
	return &p, nil
}

func (r *repoPG) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, db.Translate(err, "count patients")
	}

	query := `SELECT id, created_at FROM patient ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Translate(err, "list patients")
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CreateEpisode(ctx context.Context, e *Episode) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO episode (patient_id, category_name, start_date, end_date, active,
			consistency_token, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		e.PatientID, e.CategoryName, e.Start, e.End, e.Active,
		e.ConsistencyToken, e.CreatedBy, e.UpdatedBy, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	return db.Translate(err, fmt.Sprintf("create episode for patient %d", e.PatientID))
}

// UpdateEpisode never touches patient_id.
func (r *repoPG) UpdateEpisode(ctx context.Context, e *Episode) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE episode SET category_name = $2, start_date = $3, end_date = $4, active = $5,
			consistency_token = $6, updated_by = $7, updated_at = $8
		WHERE id = $1`,
		e.ID, e.CategoryName, e.Start, e.End, e.Active,
		e.ConsistencyToken, e.UpdatedBy, e.UpdatedAt,
	)
	if err != nil {
		return db.Translate(err, fmt.Sprintf("update episode %d", e.ID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("episode %d: %w", e.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+episodeCols+` FROM episode WHERE id = $1`, id)
	e, err := scanEpisode(row)
	if err != nil {
		return nil, db.Translate(err, fmt.Sprintf("episode %d", id))
	}
	return e, nil
}

func (r *repoPG) ListEpisodes(ctx context.Context, limit, offset int) ([]*Episode, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM episode`).Scan(&total); err != nil {
		return nil, 0, db.Translate(err, "count episodes")
	}

	query := `SELECT ` + episodeCols + ` FROM episode ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	out, err := r.queryEpisodes(ctx, query, args...)
	return out, total, err
}

func (r *repoPG) ListEpisodesByPatient(ctx context.Context, patientID int64) ([]*Episode, error) {
	return r.queryEpisodes(ctx, `SELECT `+episodeCols+` FROM episode WHERE patient_id = $1 ORDER BY id`, patientID)
}

func (r *repoPG) queryEpisodes(ctx context.Context, query string, args ...interface{}) ([]*Episode, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate(err, "list episodes")
	}
	defer rows.Close()

	var out []*Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEpisode(row pgx.Row) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.PatientID, &e.CategoryName, &e.Start, &e.End, &e.Active,
		&e.ConsistencyToken, &e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
