// Package transfer moves patients and episodes in and out of the tracker as
// portable JSON documents.
package transfer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/domain/care"
	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

// Export is a serialized entity ready to be served as an attachment.
type Export struct {
	Filename string
	Document document.Mapping
}

// ImportResult summarizes what an import wrote.
type ImportResult struct {
	PatientID   int64              `json:"patient_id"`
	PatientName string             `json:"patient_name"`
	Match       care.MatchStrategy `json:"match"`
	EpisodeIDs  []int64            `json:"episode_ids"`
	Imported    map[string]int     `json:"imported"`
	Skipped     []string           `json:"skipped,omitempty"`
	Discarded   []string           `json:"discarded,omitempty"`
}

// Message is the confirmation shown to the importing user.
func (r *ImportResult) Message() string {
	if r.PatientName != "" {
		return "Imported " + r.PatientName
	}
	return fmt.Sprintf("Imported patient %d", r.PatientID)
}

type Service struct {
	care   *care.Service
	logger zerolog.Logger
}

func NewService(careSvc *care.Service, logger zerolog.Logger) *Service {
	return &Service{care: careSvc, logger: logger.With().Str("component", "transfer").Logger()}
}

// ExportEpisode serializes an episode with every id removed.
func (s *Service) ExportEpisode(ctx context.Context, id int64, user string) (exp *Export, err error) {
	defer func() { recordExport("episode", err) }()

	e, err := s.care.GetEpisode(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.care.EpisodeToDict(ctx, e)
	if err != nil {
		return nil, err
	}
	name, err := s.care.PatientName(ctx, e.PatientID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user", user).Int64("episode_id", id).Msg("episode exported")
	return &Export{
		Filename: fmt.Sprintf("episode-%d-%s.json", e.ID, document.Slugify(name)),
		Document: document.StripIDs(data),
	}, nil
}

// ExportPatient serializes a patient and all of its episodes with every id
// removed.
func (s *Service) ExportPatient(ctx context.Context, id int64, user string) (exp *Export, err error) {
	defer func() { recordExport("patient", err) }()

	p, err := s.care.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.care.PatientToDict(ctx, p)
	if err != nil {
		return nil, err
	}
	name, err := s.care.PatientName(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user", user).Int64("patient_id", id).Msg("patient exported")
	return &Export{
		Filename: fmt.Sprintf("patient-%d-%s.json", p.ID, document.Slugify(name)),
		Document: document.StripIDs(data),
	}, nil
}

// ImportEpisode resolves the document's patient, opens a new episode for it,
// replays episode_history as further episodes, bulk-loads the importable
// subrecords and applies the remaining scalar fields to the new episode.
// Nothing is written when demographics are missing, and the whole import
// runs in one transaction.
func (s *Service) ImportEpisode(ctx context.Context, doc document.Mapping, user string) (res *ImportResult, err error) {
	defer func() { recordImport("episode", res, err) }()

	doc = document.StripKey(doc, keyToken).(document.Mapping)
	demographics, err := popDemographics(doc)
	if err != nil {
		return nil, err
	}

	err = s.care.RunInTx(ctx, func(ctx context.Context) error {
		p, strategy, err := s.care.MatchOrCreatePatient(ctx, demographics, user)
		if err != nil {
			return err
		}
		res = newResult(p, strategy)
		return s.importEpisode(ctx, p, doc, user, true, res)
	})
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, res); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user", user).Int64("patient_id", res.PatientID).
		Str("match", string(res.Match)).Ints64("episode_ids", res.EpisodeIDs).
		Strs("skipped", res.Skipped).Msg("episode imported")
	return res, nil
}

// ImportPatient resolves the document's patient, imports each entry of
// episodes as a new episode and applies the patient-level subrecords,
// demographics included, to the resolved patient.
func (s *Service) ImportPatient(ctx context.Context, doc document.Mapping, user string) (res *ImportResult, err error) {
	defer func() { recordImport("patient", res, err) }()

	doc = document.StripKey(doc, keyToken).(document.Mapping)
	demographics, err := popDemographics(doc)
	if err != nil {
		return nil, err
	}
	episodesNode, _ := doc.Pop(keyEpisodes)
	episodes, err := episodeDicts(episodesNode)
	if err != nil {
		return nil, err
	}

	err = s.care.RunInTx(ctx, func(ctx context.Context) error {
		p, strategy, err := s.care.MatchOrCreatePatient(ctx, demographics, user)
		if err != nil {
			return err
		}
		res = newResult(p, strategy)

		for _, ep := range episodes {
			if err := s.importEpisode(ctx, p, ep, user, false, res); err != nil {
				return err
			}
		}

		doc[keyDemographics] = document.Sequence{demographics}
		for _, key := range doc.Keys() {
			if seq, ok := doc[key].(document.Sequence); ok && subrecord.IsKey(subrecord.ScopePatient, key) {
				res.Imported[key] += len(seq)
			}
		}
		return s.care.UpdatePatientFromDict(ctx, p, doc, user)
	})
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, res); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user", user).Int64("patient_id", res.PatientID).
		Str("match", string(res.Match)).Ints64("episode_ids", res.EpisodeIDs).
		Strs("skipped", res.Skipped).Msg("patient imported")
	return res, nil
}

// importEpisode consumes doc, so callers pass a copy they own.
func (s *Service) importEpisode(ctx context.Context, p *care.Patient, doc document.Mapping, user string, replayHistory bool, res *ImportResult) error {
	e, err := s.care.CreateEpisode(ctx, p.ID, "", nil, user)
	if err != nil {
		return err
	}
	res.EpisodeIDs = append(res.EpisodeIDs, e.ID)

	if history, ok := doc.Pop(keyEpisodeHistory); ok {
		if !replayHistory {
			res.Skipped = append(res.Skipped, keyEpisodeHistory)
		} else {
			entries, err := document.Mappings(keyEpisodeHistory, history)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				past, err := s.care.CreateEpisodeFromDict(ctx, p.ID, entry, user)
				if err != nil {
					return err
				}
				res.EpisodeIDs = append(res.EpisodeIDs, past.ID)
			}
		}
	}

	subs := s.care.Subrecords()
	for _, row := range importable {
		node, ok := doc.Pop(row.key)
		if !ok {
			continue
		}
		dicts, err := document.Mappings(row.key, node)
		if err != nil {
			return err
		}
		recs, err := row.load(ctx, subs, row.kind, e.ID, dicts, user)
		if err != nil {
			return fmt.Errorf("import %s: %w", row.key, err)
		}
		res.Imported[row.key] += len(recs)
	}

	for _, key := range discarded {
		if _, ok := doc.Pop(key); ok {
			res.Discarded = appendOnce(res.Discarded, key)
		}
	}

	scalars := make(document.Mapping)
	for _, key := range doc.Keys() {
		if document.IsScalar(doc[key]) {
			scalars[key] = doc[key]
			continue
		}
		if seq, ok := doc[key].(document.Sequence); ok && len(seq) == 0 {
			continue
		}
		res.Skipped = appendOnce(res.Skipped, key)
	}
	if len(scalars) == 0 {
		return nil
	}
	return s.care.UpdateEpisodeFromDict(ctx, e, scalars, user)
}

func (s *Service) finish(ctx context.Context, res *ImportResult) error {
	name, err := s.care.PatientName(ctx, res.PatientID)
	if err != nil {
		return err
	}
	res.PatientName = name
	sort.Strings(res.Skipped)
	return nil
}

func newResult(p *care.Patient, strategy care.MatchStrategy) *ImportResult {
	return &ImportResult{
		PatientID:  p.ID,
		Match:      strategy,
		EpisodeIDs: []int64{},
		Imported:   map[string]int{},
	}
}

// popDemographics removes the demographics list from doc and returns its
// first entry.
func popDemographics(doc document.Mapping) (document.Mapping, error) {
	node, ok := doc.Pop(keyDemographics)
	if !ok {
		return nil, document.Invalid(keyDemographics, "No Demographics found, aborted import")
	}
	list, err := document.Mappings(keyDemographics, node)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, document.Invalid(keyDemographics, "No Demographics found, aborted import")
	}
	return list[0], nil
}

// episodeDicts reads the episodes of a patient document, keyed by their old
// ids, in key order.
func episodeDicts(n document.Node) ([]document.Mapping, error) {
	switch t := n.(type) {
	case nil:
		return nil, nil
	case document.Mapping:
		out := make([]document.Mapping, 0, len(t))
		for _, key := range sortedEpisodeKeys(t) {
			m, ok := t[key].(document.Mapping)
			if !ok {
				return nil, document.Invalid(keyEpisodes+"."+key, "expected an object")
			}
			out = append(out, m.Clone())
		}
		return out, nil
	default:
		list, err := document.Mappings(keyEpisodes, n)
		if err != nil {
			return nil, err
		}
		out := make([]document.Mapping, 0, len(list))
		for _, m := range list {
			out = append(out, m.Clone())
		}
		return out, nil
	}
}

func appendOnce(list []string, key string) []string {
	for _, k := range list {
		if k == key {
			return list
		}
	}
	return append(list, key)
}
