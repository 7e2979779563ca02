package care

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/platform/document"
)

func TestMatchOrCreatePatient_NHSNumberMatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	existing := f.patient(annLee())
	f.resetCounts()

	got, strategy, err := f.svc.MatchOrCreatePatient(f.ctx, demographics(
		"nhs_number", "9434765919",
		"first_name", "Someone",
		"surname", "Else",
	), "importer")
	require.NoError(t, err)

	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, MatchNHSNumber, strategy)
	assert.Zero(t, f.repo.patientCreates)
	assert.Zero(t, f.subs.writes)
}

func TestMatchOrCreatePatient_CompositeMatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	existing := f.patient(demographics("first_name", "Ann", "surname", "Lee", "date_of_birth", "07/03/1984"))
	f.resetCounts()

	got, strategy, err := f.svc.MatchOrCreatePatient(f.ctx, demographics(
		"nhs_number", "1111111111",
		"first_name", "Ann",
		"surname", "Lee",
		"date_of_birth", "07/03/1984",
	), "importer")
	require.NoError(t, err)

	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, MatchDemographics, strategy)
	assert.Zero(t, f.repo.patientCreates)
	assert.Zero(t, f.subs.writes)
}

func TestMatchOrCreatePatient_NHSNumberTakesPriority(t *testing.T) {
	f := newFixture(t)
	f.patient(annLee())
	bob := f.patient(demographics("nhs_number", "4010232137", "first_name", "Bob", "surname", "Stone"))

	got, strategy, err := f.svc.MatchOrCreatePatient(f.ctx, demographics(
		"nhs_number", "4010232137",
		"first_name", "Ann",
		"surname", "Lee",
		"date_of_birth", "07/03/1984",
	), "importer")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)
	assert.Equal(t, MatchNHSNumber, strategy)
}

func TestMatchOrCreatePatient_CreatesPatientAndDemographics(t *testing.T) {
	f := newFixture(t)
	f.patient(annLee())
	f.resetCounts()

	input := demographics("first_name", "Cara", "surname", "Moss", "date_of_birth", "12/11/1990", "sex", "Female")
	input[document.IDKey] = document.S(int64(42))

	got, strategy, err := f.svc.MatchOrCreatePatient(f.ctx, input, "importer")
	require.NoError(t, err)
	assert.Equal(t, MatchCreated, strategy)
	assert.Equal(t, 1, f.repo.patientCreates)
	assert.Equal(t, 1, f.subs.writes)

	rec, err := f.svc.Subrecords().Demographics(f.ctx, got.ID)
	require.NoError(t, err)
	assert.NotEqual(t, int64(42), rec.ID)
	assert.Equal(t, "Cara Moss", rec.Demographics().Name())
	assert.Equal(t, "Female", rec.Demographics().Sex)
	assert.Equal(t, "importer", rec.CreatedBy)

	_, ok := input[document.IDKey]
	assert.True(t, ok, "caller's mapping must not be mutated")
}

func TestMatchOrCreatePatient_IncompleteCompositeCreates(t *testing.T) {
	f := newFixture(t)
	existing := f.patient(demographics("first_name", "Ann", "surname", "Lee", "date_of_birth", "07/03/1984"))

	got, strategy, err := f.svc.MatchOrCreatePatient(f.ctx, demographics("first_name", "Ann", "surname", "Lee"), "importer")
	require.NoError(t, err)
	assert.Equal(t, MatchCreated, strategy)
	assert.NotEqual(t, existing.ID, got.ID)
}

func TestMatchOrCreatePatient_MalformedDateFailsFast(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.MatchOrCreatePatient(f.ctx, demographics(
		"first_name", "Ann",
		"surname", "Lee",
		"date_of_birth", "1984-03-07",
	), "importer")
	require.Error(t, err)
	assert.True(t, document.IsValidation(err))
	assert.Zero(t, f.repo.patientCreates)
	assert.Zero(t, f.subs.writes)
}

func TestMatchOrCreatePatient_InvalidDemographicsLeavesNoDemographics(t *testing.T) {
	f := newFixture(t)

	input := demographics("first_name", "Ann")
	input["unexpected"] = document.S("x")
	_, _, err := f.svc.MatchOrCreatePatient(f.ctx, input, "importer")
	require.Error(t, err)
	assert.True(t, document.IsValidation(err))

	recs, err := f.subs.ListByOwner(f.ctx, subrecord.KindDemographics, 1)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
