package care

import "context"

type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id int64) (*Patient, error)
	// ListPatients pages through patients in id order. A non-positive limit
	// returns every row.
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	CreateEpisode(ctx context.Context, e *Episode) error
	UpdateEpisode(ctx context.Context, e *Episode) error
	GetEpisode(ctx context.Context, id int64) (*Episode, error)
	ListEpisodes(ctx context.Context, limit, offset int) ([]*Episode, int, error)
	ListEpisodesByPatient(ctx context.Context, patientID int64) ([]*Episode, error)
}
