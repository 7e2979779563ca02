package care

import (
	"time"

	"github.com/ehr/tracker/internal/platform/db"
)

var (
	ErrNotFound = db.ErrNotFound
	ErrConflict = db.ErrConflict
)

// DefaultCategory is the category given to episodes created without one.
const DefaultCategory = "inpatient"

type Patient struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Episode struct {
	ID               int64      `json:"id"`
	PatientID        int64      `json:"patient_id"`
	CategoryName     string     `json:"category_name"`
	Start            *time.Time `json:"start,omitempty"`
	End              *time.Time `json:"end,omitempty"`
	Active           bool       `json:"active"`
	ConsistencyToken string     `json:"consistency_token"`
	CreatedBy        string     `json:"created_by"`
	UpdatedBy        string     `json:"updated_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PatientSummary is one row of the admin patient listing.
type PatientSummary struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	NHSNumber      string `json:"nhs_number,omitempty"`
	HospitalNumber string `json:"hospital_number,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Episodes       int    `json:"episodes"`
}
