package care

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

var fixedNow = time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)

type countingRepo struct {
	Repository
	patientCreates int
}

func (c *countingRepo) CreatePatient(ctx context.Context, p *Patient) error {
	c.patientCreates++
	return c.Repository.CreatePatient(ctx, p)
}

type countingSubrecords struct {
	subrecord.Repository
	writes int
}

func (c *countingSubrecords) Create(ctx context.Context, r *subrecord.Record) error {
	c.writes++
	return c.Repository.Create(ctx, r)
}

func (c *countingSubrecords) Update(ctx context.Context, r *subrecord.Record) error {
	c.writes++
	return c.Repository.Update(ctx, r)
}

type fixture struct {
	svc  *Service
	repo *countingRepo
	subs *countingSubrecords
	ctx  context.Context
	t    *testing.T
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &countingRepo{Repository: NewMemoryRepo()}
	subs := &countingSubrecords{Repository: subrecord.NewMemoryRepo()}
	svc := NewService(repo, subrecord.NewService(subs), nil)
	svc.SetClock(func() time.Time { return fixedNow })
	return &fixture{svc: svc, repo: repo, subs: subs, ctx: context.Background(), t: t}
}

// resetCounts forgets writes made while seeding.
func (f *fixture) resetCounts() {
	f.repo.patientCreates = 0
	f.subs.writes = 0
}

func (f *fixture) patient(demo document.Mapping) *Patient {
	f.t.Helper()
	p, strategy, err := f.svc.MatchOrCreatePatient(f.ctx, demo, "seed")
	require.NoError(f.t, err)
	require.Equal(f.t, MatchCreated, strategy)
	return p
}

func (f *fixture) episode(p *Patient, category string) *Episode {
	f.t.Helper()
	start := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	e, err := f.svc.CreateEpisode(f.ctx, p.ID, category, &start, "seed")
	require.NoError(f.t, err)
	return e
}

func (f *fixture) addSubrecord(kind subrecord.Kind, owner int64, data document.Mapping) *subrecord.Record {
	f.t.Helper()
	rec, err := f.svc.Subrecords().Create(f.ctx, kind, owner, data, "seed")
	require.NoError(f.t, err)
	return rec
}

func demographics(kv ...string) document.Mapping {
	m := document.Mapping{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = document.S(kv[i+1])
	}
	return m
}

func annLee() document.Mapping {
	return demographics(
		"nhs_number", "9434765919",
		"first_name", "Ann",
		"surname", "Lee",
		"date_of_birth", "07/03/1984",
	)
}
