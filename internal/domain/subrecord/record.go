package subrecord

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/document"
)

var (
	ErrNotFound  = db.ErrNotFound
	ErrDuplicate = db.ErrConflict

	// ErrConsistency means the caller edited a stale copy of the row.
	ErrConsistency = errors.New("consistency token mismatch")
)

// Record is one stored subrecord row.
type Record struct {
	ID               int64
	Kind             Kind
	OwnerID          int64
	ConsistencyToken string
	CreatedBy        string
	UpdatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Fields           Fields
}

// New returns an unsaved record of kind attached to owner.
func New(kind Kind, ownerID int64) *Record {
	return &Record{Kind: kind, OwnerID: ownerID, Fields: MustLookup(kind).New()}
}

func (r *Record) Capabilities() Capabilities {
	return MustLookup(r.Kind)
}

// Demographics returns the payload of a demographics row, or nil.
func (r *Record) Demographics() *Demographics {
	d, _ := r.Fields.(*Demographics)
	return d
}

// readOnly keys are produced by ToDict but never accepted by UpdateFromDict.
var readOnly = map[string]bool{
	document.IDKey:      true,
	"patient_id":        true,
	"episode_id":        true,
	"consistency_token": true,
	"created":           true,
	"updated":           true,
	"created_by":        true,
	"updated_by":        true,
}

// IsReadOnly reports whether key is managed by the store.
func IsReadOnly(key string) bool {
	return readOnly[key]
}

// ToDict serializes the row, including its id and audit fields.
func (r *Record) ToDict() (document.Mapping, error) {
	m, err := document.FromStruct(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("serialize %s %d: %w", r.Kind, r.ID, err)
	}
	m[document.IDKey] = document.S(r.ID)
	m[r.Capabilities().Scope.OwnerKey()] = document.S(r.OwnerID)
	m["consistency_token"] = document.S(r.ConsistencyToken)
	m["created_by"] = document.S(r.CreatedBy)
	m["updated_by"] = document.S(r.UpdatedBy)
	m["created"] = timestamp(r.CreatedAt)
	m["updated"] = timestamp(r.UpdatedAt)
	return m, nil
}

func timestamp(t time.Time) document.Scalar {
	if t.IsZero() {
		return document.S(nil)
	}
	return document.S(t.UTC().Format(time.RFC3339))
}

// UpdateFromDict overlays data onto the row's fields. Store-managed keys are
// ignored, unknown keys are rejected and the result must pass validation.
// A consistency token in data must match the stored one when the row has one.
func (r *Record) UpdateFromDict(data document.Mapping, user string, now time.Time) error {
	if r.ConsistencyToken != "" {
		if token := data.String("consistency_token"); token != "" && token != r.ConsistencyToken {
			return fmt.Errorf("%s %d: %w", r.Kind, r.ID, ErrConsistency)
		}
	}

	merged, err := document.FromStruct(r.Fields)
	if err != nil {
		return err
	}
	for k, v := range data {
		if readOnly[k] {
			continue
		}
		merged[k] = v
	}

	fields, err := decodeFields(r.Kind, merged)
	if err != nil {
		return err
	}
	if err := Validate(fields); err != nil {
		return err
	}

	r.Fields = fields
	r.ConsistencyToken = NewToken()
	r.UpdatedBy = user
	r.UpdatedAt = now
	if r.ID == 0 {
		r.CreatedBy = user
		r.CreatedAt = now
	}
	return nil
}

func decodeFields(kind Kind, m document.Mapping) (Fields, error) {
	fields := MustLookup(kind).New()
	b, err := json.Marshal(document.Value(numbersAsText(fields, m)))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(fields); err != nil {
		return nil, document.Invalid(string(kind), strings.TrimPrefix(err.Error(), "json: "))
	}
	return fields, nil
}

// numbersAsText rewrites numeric scalars sent for string fields of target as
// text, so an nhs_number of 9434765919 decodes like "9434765919". m is not
// modified.
func numbersAsText(target Fields, m document.Mapping) document.Mapping {
	t := reflect.TypeOf(target)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return m
	}

	var out document.Mapping
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Kind() != reflect.String {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		s, ok := m[name].(document.Scalar)
		if !ok || !isNumber(s.Value) {
			continue
		}
		if out == nil {
			out = make(document.Mapping, len(m))
			for k, v := range m {
				out[k] = v
			}
		}
		out[name] = document.S(document.ScalarString(s))
	}
	if out == nil {
		return m
	}
	return out
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case json.Number, int, int64, float64:
		return true
	}
	return false
}

// NewToken returns a fresh consistency token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks struct tags on a payload and reports the first failure as
// a document.ValidationError keyed by JSON field name.
func Validate(f Fields) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate %s: %w", f.Kind(), err)
	}
	fe := verrs[0]
	field := string(f.Kind()) + "." + fe.Field()
	switch fe.Tag() {
	case "required":
		return document.Invalid(field, "is required")
	case "max":
		return document.Invalid(field, "must be at most "+fe.Param()+" characters")
	default:
		return document.Invalid(field, "failed "+fe.Tag()+" validation")
	}
}
