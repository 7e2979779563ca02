package care

import (
	"context"
	"strconv"
	"time"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

// episodeFields serializes the episode's own columns.
func episodeFields(e *Episode) document.Mapping {
	return document.Mapping{
		document.IDKey:      document.S(e.ID),
		"patient_id":        document.S(e.PatientID),
		"category_name":     document.S(e.CategoryName),
		"start":             document.DateValue(e.Start),
		"end":               document.DateValue(e.End),
		"active":            document.S(e.Active),
		"consistency_token": document.S(e.ConsistencyToken),
		"created_by":        document.S(e.CreatedBy),
		"updated_by":        document.S(e.UpdatedBy),
		"created":           timestamp(e.CreatedAt),
		"updated":           timestamp(e.UpdatedAt),
	}
}

func timestamp(t time.Time) document.Scalar {
	if t.IsZero() {
		return document.S(nil)
	}
	return document.S(t.UTC().Format(time.RFC3339))
}

// EpisodeToDict serializes an episode with its patient's subrecords, its own
// subrecords and an episode_history of the patient's other episodes.
func (s *Service) EpisodeToDict(ctx context.Context, e *Episode) (document.Mapping, error) {
	out := episodeFields(e)

	patientSubs, err := s.subs.DictsForOwner(ctx, subrecord.ScopePatient, e.PatientID)
	if err != nil {
		return nil, err
	}
	episodeSubs, err := s.subs.DictsForOwner(ctx, subrecord.ScopeEpisode, e.ID)
	if err != nil {
		return nil, err
	}
	for k, v := range patientSubs {
		out[k] = v
	}
	for k, v := range episodeSubs {
		out[k] = v
	}

	siblings, err := s.repo.ListEpisodesByPatient(ctx, e.PatientID)
	if err != nil {
		return nil, err
	}
	history := make(document.Sequence, 0, len(siblings))
	for _, other := range siblings {
		if other.ID == e.ID {
			continue
		}
		history = append(history, episodeFields(other))
	}
	out["episode_history"] = history
	return out, nil
}

// PatientToDict serializes a patient with its subrecords and every episode,
// keyed by episode id. Nested episodes carry their own subrecords only.
func (s *Service) PatientToDict(ctx context.Context, p *Patient) (document.Mapping, error) {
	out, err := s.subs.DictsForOwner(ctx, subrecord.ScopePatient, p.ID)
	if err != nil {
		return nil, err
	}
	out[document.IDKey] = document.S(p.ID)

	episodes, err := s.repo.ListEpisodesByPatient(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	nested := make(document.Mapping, len(episodes))
	for _, e := range episodes {
		m := episodeFields(e)
		subs, err := s.subs.DictsForOwner(ctx, subrecord.ScopeEpisode, e.ID)
		if err != nil {
			return nil, err
		}
		for k, v := range subs {
			m[k] = v
		}
		nested[strconv.FormatInt(e.ID, 10)] = m
	}
	out["episodes"] = nested
	return out, nil
}
