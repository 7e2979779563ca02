package subrecord

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, kind Kind, id int64) (*Record, error)
	ListByOwner(ctx context.Context, kind Kind, ownerID int64) ([]*Record, error)
	// FindDemographicsByNHSNumber returns ErrNotFound when no row carries nhs.
	FindDemographicsByNHSNumber(ctx context.Context, nhs string) (*Record, error)
	// FindDemographicsByIdentity matches date of birth, first name and surname
	// exactly. When several rows match the earliest created wins.
	FindDemographicsByIdentity(ctx context.Context, dob time.Time, firstName, surname string) (*Record, error)
}
