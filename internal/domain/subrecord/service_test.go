package subrecord

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/tracker/internal/platform/document"
)

func newTestService() *Service {
	svc := NewService(NewMemoryRepo())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestBulkUpdateFromDicts_CreatesRows(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	recs, err := svc.BulkUpdateFromDicts(ctx, KindInvestigation, 1, []document.Mapping{
		{"test": document.S("FBC")},
		{"test": document.S("U&E")},
	}, "u")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)

	listed, err := svc.ListForOwner(ctx, KindInvestigation, 1)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestBulkUpdateFromDicts_UpdatesByID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, KindTreatment, 4, document.Mapping{"drug": document.S("aspirin")}, "u")
	require.NoError(t, err)

	_, err = svc.BulkUpdateFromDicts(ctx, KindTreatment, 4, []document.Mapping{
		{"id": document.S(json.Number("1")), "dose": document.S("75mg")},
	}, "v")
	require.NoError(t, err)

	got, err := svc.Repo().GetByID(ctx, KindTreatment, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "75mg", got.Fields.(*Treatment).Dose)
	assert.Equal(t, "v", got.UpdatedBy)

	_, err = svc.BulkUpdateFromDicts(ctx, KindTreatment, 5, []document.Mapping{
		{"id": document.S(json.Number("1")), "dose": document.S("1g")},
	}, "v")
	assert.True(t, document.IsValidation(err), "row owned by another episode")
}

func TestBulkUpdateFromDicts_Singleton(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.BulkUpdateFromDicts(ctx, KindLocation, 2, []document.Mapping{
		{"ward": document.S("A")}, {"ward": document.S("B")},
	}, "u")
	require.Error(t, err)
	assert.True(t, document.IsValidation(err))

	_, err = svc.BulkUpdateFromDicts(ctx, KindLocation, 2, []document.Mapping{{"ward": document.S("A")}}, "u")
	require.NoError(t, err)
	_, err = svc.BulkUpdateFromDicts(ctx, KindLocation, 2, []document.Mapping{{"bed": document.S("7")}}, "u")
	require.NoError(t, err)

	recs, err := svc.ListForOwner(ctx, KindLocation, 2)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	loc := recs[0].Fields.(*Location)
	assert.Equal(t, "A", loc.Ward)
	assert.Equal(t, "7", loc.Bed)
}

func TestBulkUpdateFromDicts_BadID(t *testing.T) {
	svc := newTestService()
	_, err := svc.BulkUpdateFromDicts(context.Background(), KindTreatment, 1, []document.Mapping{
		{"id": document.S("abc"), "drug": document.S("x")},
	}, "u")
	assert.True(t, document.IsValidation(err))
}

func TestClone_AssignsFreshIdentity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	src, err := svc.Create(ctx, KindDiagnosis, 1, document.Mapping{"condition": document.S("Asthma")}, "u")
	require.NoError(t, err)

	c, err := svc.Clone(ctx, src, 2, "v")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, c.ID)
	assert.NotEqual(t, src.ConsistencyToken, c.ConsistencyToken)
	assert.Equal(t, int64(2), c.OwnerID)
	assert.Equal(t, src.Fields, c.Fields)

	srcAfter, err := svc.Repo().GetByID(ctx, KindDiagnosis, src.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), srcAfter.OwnerID)
}

func TestDictsForOwner(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, KindAllergy, 9, document.Mapping{"drug": document.S("penicillin")}, "u")
	require.NoError(t, err)

	m, err := svc.DictsForOwner(ctx, ScopePatient, 9)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"allergies", "demographics"}, m.Keys())
	assert.Len(t, m["allergies"].(document.Sequence), 1)
	assert.Empty(t, m["demographics"].(document.Sequence))
}

func TestMemoryRepo_UniqueNHSNumber(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, KindDemographics, 1, document.Mapping{"nhs_number": document.S("9434765919")}, "u")
	require.NoError(t, err)
	_, err = svc.Create(ctx, KindDemographics, 2, document.Mapping{"nhs_number": document.S("9434765919")}, "u")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestFindDemographics(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, KindDemographics, 1, document.Mapping{
		"first_name": document.S("Ann"), "surname": document.S("Lee"), "date_of_birth": document.S("07/03/1984"),
	}, "u")
	require.NoError(t, err)

	dob, err := document.ParseDate("date_of_birth", "07/03/1984")
	require.NoError(t, err)

	rec, err := svc.Repo().FindDemographicsByIdentity(ctx, dob, "Ann", "Lee")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.OwnerID)

	_, err = svc.Repo().FindDemographicsByIdentity(ctx, dob, "ann", "Lee")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Repo().FindDemographicsByNHSNumber(ctx, "123")
	assert.ErrorIs(t, err, ErrNotFound)
}
