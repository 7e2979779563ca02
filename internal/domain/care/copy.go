package care

import (
	"context"
	"strings"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

// CopyEpisodeToCategory opens a new episode for the same patient with the
// same start date under category, then clones every row of each episode kind
// that is clonable and not a singleton. Clones get fresh ids. The new
// episode is returned serialized.
func (s *Service) CopyEpisodeToCategory(ctx context.Context, episodeID int64, category, user string) (document.Mapping, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, document.Invalid("category_name", "is required")
	}

	var out document.Mapping
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		created, err := s.CreateEpisode(ctx, old.PatientID, category, old.Start, user)
		if err != nil {
			return err
		}

		for _, caps := range subrecord.InScope(subrecord.ScopeEpisode) {
			if caps.Singleton || !caps.Clonable {
				continue
			}
			rows, err := s.subs.ListForOwner(ctx, caps.Kind, old.ID)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if _, err := s.subs.Clone(ctx, row, created.ID, user); err != nil {
					return err
				}
			}
		}

		out, err = s.EpisodeToDict(ctx, created)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
