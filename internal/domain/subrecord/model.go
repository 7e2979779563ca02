package subrecord

import (
	"strings"

	"github.com/ehr/tracker/internal/platform/document"
)

// Kind identifies a subrecord type. Its value is the document key the type
// is serialized under.
type Kind string

const (
	KindDemographics  Kind = "demographics"
	KindAllergy       Kind = "allergies"
	KindLocation      Kind = "location"
	KindInvestigation Kind = "investigation"
	KindTreatment     Kind = "treatment"
	KindDiagnosis     Kind = "diagnosis"
	KindTagging       Kind = "tagging"
)

// Scope names the entity a subrecord hangs off.
type Scope string

const (
	ScopePatient Scope = "patient"
	ScopeEpisode Scope = "episode"
)

// OwnerKey is the document key carrying the owner's id.
func (s Scope) OwnerKey() string {
	if s == ScopePatient {
		return "patient_id"
	}
	return "episode_id"
}

// Fields is the kind-specific payload of a subrecord row.
type Fields interface {
	Kind() Kind
}

type Demographics struct {
	NHSNumber      string        `json:"nhs_number" validate:"omitempty,max=20"`
	HospitalNumber string        `json:"hospital_number" validate:"omitempty,max=64"`
	FirstName      string        `json:"first_name" validate:"omitempty,max=255"`
	Surname        string        `json:"surname" validate:"omitempty,max=255"`
	MiddleName     string        `json:"middle_name" validate:"omitempty,max=255"`
	DateOfBirth    document.Date `json:"date_of_birth"`
	Sex            string        `json:"sex" validate:"omitempty,max=64"`
	PostCode       string        `json:"post_code" validate:"omitempty,max=20"`
	GPPracticeCode string        `json:"gp_practice_code" validate:"omitempty,max=20"`
}

func (Demographics) Kind() Kind { return KindDemographics }

// Name is the display name used in listings and export filenames.
func (d Demographics) Name() string {
	return strings.TrimSpace(d.FirstName + " " + d.Surname)
}

type Allergy struct {
	Drug        string `json:"drug" validate:"required,max=255"`
	Provisional bool   `json:"provisional"`
	Details     string `json:"details"`
}

func (Allergy) Kind() Kind { return KindAllergy }

type Location struct {
	Category string `json:"category" validate:"omitempty,max=255"`
	Hospital string `json:"hospital" validate:"omitempty,max=255"`
	Ward     string `json:"ward" validate:"omitempty,max=255"`
	Bed      string `json:"bed" validate:"omitempty,max=255"`
}

func (Location) Kind() Kind { return KindLocation }

type Investigation struct {
	Test        string        `json:"test" validate:"required,max=255"`
	DateOrdered document.Date `json:"date_ordered"`
	Result      string        `json:"result"`
	Details     string        `json:"details"`
}

func (Investigation) Kind() Kind { return KindInvestigation }

type Treatment struct {
	Drug      string        `json:"drug" validate:"required,max=255"`
	Dose      string        `json:"dose" validate:"omitempty,max=255"`
	Route     string        `json:"route" validate:"omitempty,max=255"`
	Frequency string        `json:"frequency" validate:"omitempty,max=255"`
	StartDate document.Date `json:"start_date"`
	EndDate   document.Date `json:"end_date"`
}

func (Treatment) Kind() Kind { return KindTreatment }

type Diagnosis struct {
	Condition       string        `json:"condition" validate:"required,max=255"`
	Provisional     bool          `json:"provisional"`
	DateOfDiagnosis document.Date `json:"date_of_diagnosis"`
	Details         string        `json:"details"`
}

func (Diagnosis) Kind() Kind { return KindDiagnosis }

// Tagging lists the teams an episode is visible to. It is derived state and
// never imported or copied.
type Tagging struct {
	Teams []string `json:"teams" validate:"dive,max=64"`
}

func (Tagging) Kind() Kind { return KindTagging }
