package transfer

import (
	"context"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

type bulkLoader func(ctx context.Context, subs *subrecord.Service, kind subrecord.Kind, episodeID int64, dicts []document.Mapping, user string) ([]*subrecord.Record, error)

func bulkUpsert(ctx context.Context, subs *subrecord.Service, kind subrecord.Kind, episodeID int64, dicts []document.Mapping, user string) ([]*subrecord.Record, error) {
	return subs.BulkUpdateFromDicts(ctx, kind, episodeID, dicts, user)
}

// importable lists the episode subrecords an episode document may carry, in
// load order.
var importable = []struct {
	key  string
	kind subrecord.Kind
	load bulkLoader
}{
	{"investigation", subrecord.KindInvestigation, bulkUpsert},
	{"location", subrecord.KindLocation, bulkUpsert},
	{"treatment", subrecord.KindTreatment, bulkUpsert},
}

// discarded keys are dropped without touching any state. Tags are derived
// from episode membership and never imported.
var discarded = []string{string(subrecord.KindTagging)}

const (
	keyDemographics   = "demographics"
	keyEpisodeHistory = "episode_history"
	keyEpisodes       = "episodes"
	keyToken          = "consistency_token"
)
