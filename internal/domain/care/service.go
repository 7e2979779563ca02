package care

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/document"
)

// ErrConsistency means the caller edited a stale copy of an episode.
var ErrConsistency = subrecord.ErrConsistency

type Service struct {
	repo            Repository
	subs            *subrecord.Service
	tx              db.Transactor
	now             func() time.Time
	defaultCategory string
}

func NewService(repo Repository, subs *subrecord.Service, tx db.Transactor) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Service{
		repo:            repo,
		subs:            subs,
		tx:              tx,
		now:             func() time.Time { return time.Now().UTC() },
		defaultCategory: DefaultCategory,
	}
}

// SetClock replaces the time source used for audit fields.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.subs.SetClock(now)
}

// SetDefaultCategory sets the category for episodes created without one.
func (s *Service) SetDefaultCategory(category string) {
	if category != "" {
		s.defaultCategory = category
	}
}

func (s *Service) Subrecords() *subrecord.Service {
	return s.subs
}

// RunInTx runs fn atomically using the service's transactor.
func (s *Service) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	return s.repo.GetEpisode(ctx, id)
}

func (s *Service) createPatient(ctx context.Context) (*Patient, error) {
	p := &Patient{CreatedAt: s.now()}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) newEpisode(patientID int64, user string) *Episode {
	now := s.now()
	return &Episode{
		PatientID:        patientID,
		CategoryName:     s.defaultCategory,
		Active:           true,
		ConsistencyToken: subrecord.NewToken(),
		CreatedBy:        user,
		UpdatedBy:        user,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// CreateEpisode opens a new episode for patient. An empty category falls
// back to the default.
func (s *Service) CreateEpisode(ctx context.Context, patientID int64, category string, start *time.Time, user string) (*Episode, error) {
	e := s.newEpisode(patientID, user)
	if category != "" {
		e.CategoryName = category
	}
	e.Start = start
	if err := s.repo.CreateEpisode(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEpisodeFromDict opens a new episode for patient populated from data.
func (s *Service) CreateEpisodeFromDict(ctx context.Context, patientID int64, data document.Mapping, user string) (*Episode, error) {
	e := s.newEpisode(patientID, user)
	if err := applyEpisodeFields(e, data); err != nil {
		return nil, err
	}
	if err := s.repo.CreateEpisode(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEpisodeFromDict applies scalar episode fields from data. Store-managed
// keys are ignored and anything else unknown is rejected. The patient is
// never changed.
func (s *Service) UpdateEpisodeFromDict(ctx context.Context, e *Episode, data document.Mapping, user string) error {
	if token := data.String("consistency_token"); token != "" && e.ConsistencyToken != "" && token != e.ConsistencyToken {
		return fmt.Errorf("episode %d: %w", e.ID, ErrConsistency)
	}
	updated := *e
	if err := applyEpisodeFields(&updated, data); err != nil {
		return err
	}
	updated.ConsistencyToken = subrecord.NewToken()
	updated.UpdatedBy = user
	updated.UpdatedAt = s.now()
	if err := s.repo.UpdateEpisode(ctx, &updated); err != nil {
		return err
	}
	*e = updated
	return nil
}

var episodeReadOnly = map[string]bool{
	document.IDKey:      true,
	"patient_id":        true,
	"consistency_token": true,
	"created":           true,
	"updated":           true,
	"created_by":        true,
	"updated_by":        true,
}

func applyEpisodeFields(e *Episode, data document.Mapping) error {
	for _, key := range data.Keys() {
		if episodeReadOnly[key] {
			continue
		}
		v, ok := data[key].(document.Scalar)
		if !ok {
			return document.Invalid(key, "expected a scalar value")
		}
		switch key {
		case "category_name":
			name := strings.TrimSpace(document.ScalarString(v))
			if name == "" {
				return document.Invalid(key, "is required")
			}
			e.CategoryName = name
		case "start", "end":
			t, err := optionalDate(key, v)
			if err != nil {
				return err
			}
			if key == "start" {
				e.Start = t
			} else {
				e.End = t
			}
		case "active":
			b, err := strconv.ParseBool(document.ScalarString(v))
			if err != nil {
				return document.Invalid(key, "expected true or false")
			}
			e.Active = b
		default:
			return document.Invalid(key, "unknown episode field")
		}
	}
	return nil
}

func optionalDate(field string, v document.Scalar) (*time.Time, error) {
	raw := document.ScalarString(v)
	if raw == "" {
		return nil, nil
	}
	t, err := document.ParseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdatePatientFromDict bulk-upserts the patient subrecord lists in data.
// Store-managed keys are ignored; any other key is rejected.
func (s *Service) UpdatePatientFromDict(ctx context.Context, p *Patient, data document.Mapping, user string) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, key := range data.Keys() {
			if key == document.IDKey || key == "created" {
				continue
			}
			if !subrecord.IsKey(subrecord.ScopePatient, key) {
				return document.Invalid(key, "unknown patient field")
			}
			dicts, err := document.Mappings(key, data[key])
			if err != nil {
				return err
			}
			if _, err := s.subs.BulkUpdateFromDicts(ctx, subrecord.Kind(key), p.ID, dicts, user); err != nil {
				return err
			}
		}
		return nil
	})
}

// PatientName is the display name from the patient's demographics, or ""
// when there are none.
func (s *Service) PatientName(ctx context.Context, patientID int64) (string, error) {
	rec, err := s.subs.Demographics(ctx, patientID)
	if errors.Is(err, subrecord.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Demographics().Name(), nil
}

// ListPatients pages through patient summaries. A non-empty query keeps
// patients whose name fuzzily matches it or whose NHS or hospital number
// contains it.
func (s *Service) ListPatients(ctx context.Context, query string, limit, offset int) ([]PatientSummary, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		patients, total, err := s.repo.ListPatients(ctx, limit, offset)
		if err != nil {
			return nil, 0, err
		}
		out, err := s.summaries(ctx, patients)
		return out, total, err
	}

	patients, _, err := s.repo.ListPatients(ctx, 0, 0)
	if err != nil {
		return nil, 0, err
	}
	all, err := s.summaries(ctx, patients)
	if err != nil {
		return nil, 0, err
	}
	matched := all[:0]
	for _, ps := range all {
		if fuzzy.MatchNormalizedFold(query, ps.Name) ||
			(ps.NHSNumber != "" && strings.Contains(ps.NHSNumber, query)) ||
			(ps.HospitalNumber != "" && strings.Contains(ps.HospitalNumber, query)) {
			matched = append(matched, ps)
		}
	}
	return page(matched, limit, offset), len(matched), nil
}

func (s *Service) summaries(ctx context.Context, patients []*Patient) ([]PatientSummary, error) {
	out := make([]PatientSummary, 0, len(patients))
	for _, p := range patients {
		ps := PatientSummary{ID: p.ID}
		rec, err := s.subs.Demographics(ctx, p.ID)
		switch {
		case err == nil:
			d := rec.Demographics()
			ps.Name = d.Name()
			ps.NHSNumber = d.NHSNumber
			ps.HospitalNumber = d.HospitalNumber
			if !d.DateOfBirth.IsZero() {
				ps.DateOfBirth = document.FormatDate(d.DateOfBirth.Time)
			}
		case !errors.Is(err, subrecord.ErrNotFound):
			return nil, err
		}
		episodes, err := s.repo.ListEpisodesByPatient(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		ps.Episodes = len(episodes)
		out = append(out, ps)
	}
	return out, nil
}

func (s *Service) ListEpisodes(ctx context.Context, limit, offset int) ([]*Episode, int, error) {
	return s.repo.ListEpisodes(ctx, limit, offset)
}
