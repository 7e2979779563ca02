package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format for dates: DD/MM/YYYY.
const DateLayout = "02/01/2006"

// parseLayout also accepts one-digit days and months, as in 7/3/1984.
const parseLayout = "2/1/2006"

// ParseDate parses a DD/MM/YYYY value. Failures are reported as a
// ValidationError against field.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(parseLayout, value)
	if err != nil {
		return time.Time{}, Invalid(field, fmt.Sprintf("%q is not a date in DD/MM/YYYY format", value))
	}
	return t, nil
}

// FormatDate renders t as DD/MM/YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Date is a calendar date carried as DD/MM/YYYY in documents. The zero value
// encodes as null.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Ptr returns nil for the zero date.
func (d Date) Ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatDate(d.Time))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(parseLayout, s)
	if err != nil {
		return fmt.Errorf("%q is not a date in DD/MM/YYYY format", s)
	}
	*d = Date{Time: t}
	return nil
}

// DateValue renders an optional date as a document scalar.
func DateValue(t *time.Time) Scalar {
	if t == nil {
		return Scalar{}
	}
	return Scalar{Value: FormatDate(*t)}
}
