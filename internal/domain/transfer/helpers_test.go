package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ehr/tracker/internal/domain/care"
	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/document"
)

var fixedNow = time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)

type env struct {
	t    *testing.T
	ctx  context.Context
	care *care.Service
	svc  *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	careRepo, subsRepo := care.NewMemoryRepo(), subrecord.NewMemoryRepo()
	careSvc := care.NewService(careRepo, subrecord.NewService(subsRepo), db.NewMemoryTransactor(careRepo, subsRepo))
	careSvc.SetClock(func() time.Time { return fixedNow })
	return &env{
		t:    t,
		ctx:  context.Background(),
		care: careSvc,
		svc:  NewService(careSvc, zerolog.Nop()),
	}
}

func (e *env) patient(demo document.Mapping) *care.Patient {
	e.t.Helper()
	p, _, err := e.care.MatchOrCreatePatient(e.ctx, demo, "seed")
	require.NoError(e.t, err)
	return p
}

func (e *env) episode(p *care.Patient, category, start string) *care.Episode {
	e.t.Helper()
	ep, err := e.care.CreateEpisodeFromDict(e.ctx, p.ID, document.Mapping{
		"category_name": document.S(category),
		"start":         document.S(start),
	}, "seed")
	require.NoError(e.t, err)
	return ep
}

func (e *env) add(kind subrecord.Kind, owner int64, fields ...string) *subrecord.Record {
	e.t.Helper()
	rec, err := e.care.Subrecords().Create(e.ctx, kind, owner, fieldsOf(fields...), "seed")
	require.NoError(e.t, err)
	return rec
}

func (e *env) rows(kind subrecord.Kind, owner int64) []*subrecord.Record {
	e.t.Helper()
	recs, err := e.care.Subrecords().ListForOwner(e.ctx, kind, owner)
	require.NoError(e.t, err)
	return recs
}

func fieldsOf(kv ...string) document.Mapping {
	m := document.Mapping{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = document.S(kv[i+1])
	}
	return m
}

func annLee() document.Mapping {
	return fieldsOf(
		"nhs_number", "9434765919",
		"first_name", "Ann",
		"surname", "Lee",
		"date_of_birth", "07/03/1984",
		"post_code", "N1 9GU",
	)
}

// seedAnn creates Ann Lee with an allergy, an older outpatient episode and a
// current inpatient episode carrying one row of every importable kind and a
// tagging.
func (e *env) seedAnn() (*care.Patient, *care.Episode) {
	e.t.Helper()
	p := e.patient(annLee())
	e.add(subrecord.KindAllergy, p.ID, "drug", "Penicillin")
	e.episode(p, "outpatient", "10/01/2023")

	ep := e.episode(p, "inpatient", "01/02/2024")
	e.add(subrecord.KindLocation, ep.ID, "ward", "9W", "bed", "12")
	e.add(subrecord.KindInvestigation, ep.ID, "test", "FBC", "result", "normal")
	e.add(subrecord.KindInvestigation, ep.ID, "test", "CRP")
	e.add(subrecord.KindTreatment, ep.ID, "drug", "Amoxicillin", "dose", "500mg", "start_date", "02/02/2024")
	_, err := e.care.Subrecords().Create(e.ctx, subrecord.KindTagging, ep.ID,
		document.Mapping{"teams": document.Sequence{document.S("respiratory")}}, "seed")
	require.NoError(e.t, err)
	return p, ep
}

func hasKey(n document.Node, key string) bool {
	switch t := n.(type) {
	case document.Mapping:
		for k, v := range t {
			if k == key || hasKey(v, key) {
				return true
			}
		}
	case document.Sequence:
		for _, v := range t {
			if hasKey(v, key) {
				return true
			}
		}
	}
	return false
}
