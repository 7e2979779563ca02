package subrecord

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ehr/tracker/internal/platform/document"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source used for audit fields.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Repo() Repository {
	return s.repo
}

// Create stores a new row of kind for owner populated from data.
func (s *Service) Create(ctx context.Context, kind Kind, ownerID int64, data document.Mapping, user string) (*Record, error) {
	rec := New(kind, ownerID)
	if err := rec.UpdateFromDict(data, user, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies data to an existing row.
func (s *Service) Update(ctx context.Context, rec *Record, data document.Mapping, user string) error {
	if err := rec.UpdateFromDict(data, user, s.now()); err != nil {
		return err
	}
	return s.repo.Update(ctx, rec)
}

// BulkUpdateFromDicts upserts a list of field-sets against owner. A singleton
// kind accepts at most one entry, which updates the existing row if there is
// one. Other kinds update the row named by an entry's id and create a row
// for entries without one.
func (s *Service) BulkUpdateFromDicts(ctx context.Context, kind Kind, ownerID int64, dicts []document.Mapping, user string) ([]*Record, error) {
	caps, ok := Lookup(kind)
	if !ok {
		return nil, document.Invalid(string(kind), "unknown subrecord type")
	}

	if caps.Singleton {
		if len(dicts) > 1 {
			return nil, document.Invalid(string(kind), fmt.Sprintf("%s is a singleton; got %d entries", caps.Name, len(dicts)))
		}
		if len(dicts) == 0 {
			return nil, nil
		}
		existing, err := s.repo.ListByOwner(ctx, kind, ownerID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			if err := s.Update(ctx, existing[0], dicts[0], user); err != nil {
				return nil, err
			}
			return existing[:1], nil
		}
		rec, err := s.Create(ctx, kind, ownerID, dicts[0], user)
		if err != nil {
			return nil, err
		}
		return []*Record{rec}, nil
	}

	out := make([]*Record, 0, len(dicts))
	for _, d := range dicts {
		id, err := IDOf(d)
		if err != nil {
			return out, err
		}
		if id == 0 {
			rec, err := s.Create(ctx, kind, ownerID, d, user)
			if err != nil {
				return out, err
			}
			out = append(out, rec)
			continue
		}

		rec, err := s.repo.GetByID(ctx, kind, id)
		if err != nil {
			return out, err
		}
		if rec.OwnerID != ownerID {
			return out, document.Invalid(string(kind), fmt.Sprintf("%s %d belongs to another %s", kind, id, caps.Scope))
		}
		if err := s.Update(ctx, rec, d, user); err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// IDOf reads the optional id of a field-set. Missing and null ids are 0.
func IDOf(m document.Mapping) (int64, error) {
	raw := m.String(document.IDKey)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, document.Invalid(document.IDKey, fmt.Sprintf("%q is not an integer", raw))
	}
	return id, nil
}

func (s *Service) ListForOwner(ctx context.Context, kind Kind, ownerID int64) ([]*Record, error) {
	return s.repo.ListByOwner(ctx, kind, ownerID)
}

// DictsForOwner serializes every kind in scope attached to owner, keyed by
// document key. Kinds without rows map to an empty list.
func (s *Service) DictsForOwner(ctx context.Context, scope Scope, ownerID int64) (document.Mapping, error) {
	out := make(document.Mapping)
	for _, caps := range InScope(scope) {
		recs, err := s.repo.ListByOwner(ctx, caps.Kind, ownerID)
		if err != nil {
			return nil, err
		}
		seq := make(document.Sequence, 0, len(recs))
		for _, rec := range recs {
			m, err := rec.ToDict()
			if err != nil {
				return nil, err
			}
			seq = append(seq, m)
		}
		out[string(caps.Kind)] = seq
	}
	return out, nil
}

// Clone copies src onto newOwner as a new row with a fresh id and token.
func (s *Service) Clone(ctx context.Context, src *Record, newOwner int64, user string) (*Record, error) {
	now := s.now()
	c := cloneRecord(src)
	c.ID = 0
	c.OwnerID = newOwner
	c.ConsistencyToken = NewToken()
	c.CreatedBy, c.UpdatedBy = user, user
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Demographics returns the patient's demographics row.
func (s *Service) Demographics(ctx context.Context, patientID int64) (*Record, error) {
	recs, err := s.repo.ListByOwner(ctx, KindDemographics, patientID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("demographics for patient %d: %w", patientID, ErrNotFound)
	}
	return recs[0], nil
}
