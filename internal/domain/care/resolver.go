package care

import (
	"context"
	"errors"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

// MatchStrategy records how MatchOrCreatePatient found its patient.
type MatchStrategy string

const (
	MatchNHSNumber    MatchStrategy = "nhs_number"
	MatchDemographics MatchStrategy = "demographics"
	MatchCreated      MatchStrategy = "created"
)

// MatchOrCreatePatient finds the patient described by demographics, trying in
// order:
//
//  1. an exact nhs_number match,
//  2. an exact match on date_of_birth, first_name and surname,
//  3. a new patient whose demographics are populated from the input.
//
// A missing match falls through to the next step. A malformed date_of_birth
// is a validation error and never falls through to creation.
func (s *Service) MatchOrCreatePatient(ctx context.Context, demographics document.Mapping, user string) (*Patient, MatchStrategy, error) {
	repo := s.subs.Repo()

	if nhs := demographics.String("nhs_number"); nhs != "" {
		rec, err := repo.FindDemographicsByNHSNumber(ctx, nhs)
		switch {
		case err == nil:
			p, err := s.repo.GetPatient(ctx, rec.OwnerID)
			return p, MatchNHSNumber, err
		case !errors.Is(err, subrecord.ErrNotFound):
			return nil, "", err
		}
	}

	dob := demographics.String("date_of_birth")
	first := demographics.String("first_name")
	surname := demographics.String("surname")
	if dob != "" && first != "" && surname != "" {
		date, err := document.ParseDate("date_of_birth", dob)
		if err != nil {
			return nil, "", err
		}
		rec, err := repo.FindDemographicsByIdentity(ctx, date, first, surname)
		switch {
		case err == nil:
			p, err := s.repo.GetPatient(ctx, rec.OwnerID)
			return p, MatchDemographics, err
		case !errors.Is(err, subrecord.ErrNotFound):
			return nil, "", err
		}
	}

	var created *Patient
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.createPatient(ctx)
		if err != nil {
			return err
		}
		data := document.StripIDs(demographics)
		if _, err := s.subs.Create(ctx, subrecord.KindDemographics, p.ID, data, user); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return created, MatchCreated, nil
}
