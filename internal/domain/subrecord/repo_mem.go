package subrecord

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps rows in process memory. It backs tests and the
// STORAGE=memory mode of the server.
type MemoryRepo struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[int64]*Record)}
}

func (m *MemoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(r); err != nil {
		return err
	}
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = cloneRecord(r)
	return nil
}

func (m *MemoryRepo) Update(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[r.ID]
	if !ok || existing.Kind != r.Kind {
		return fmt.Errorf("%s %d: %w", r.Kind, r.ID, ErrNotFound)
	}
	if err := m.checkUnique(r); err != nil {
		return err
	}
	m.rows[r.ID] = cloneRecord(r)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, kind Kind, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok || r.Kind != kind {
		return nil, fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return cloneRecord(r), nil
}

func (m *MemoryRepo) ListByOwner(_ context.Context, kind Kind, ownerID int64) ([]*Record, error) {
	return m.filter(func(r *Record) bool { return r.Kind == kind && r.OwnerID == ownerID }), nil
}

func (m *MemoryRepo) FindDemographicsByNHSNumber(_ context.Context, nhs string) (*Record, error) {
	found := m.filter(func(r *Record) bool {
		d := r.Demographics()
		return d != nil && nhs != "" && d.NHSNumber == nhs
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("demographics nhs_number=%s: %w", nhs, ErrNotFound)
	}
	return found[0], nil
}

func (m *MemoryRepo) FindDemographicsByIdentity(_ context.Context, dob time.Time, firstName, surname string) (*Record, error) {
	found := m.filter(func(r *Record) bool {
		d := r.Demographics()
		return d != nil && !d.DateOfBirth.IsZero() && d.DateOfBirth.Equal(dob) &&
			d.FirstName == firstName && d.Surname == surname
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("demographics %s %s: %w", firstName, surname, ErrNotFound)
	}
	return found[0], nil
}

// filter returns copies of matching rows in id order.
func (m *MemoryRepo) filter(match func(*Record) bool) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for _, r := range m.rows {
		if match(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot captures every row and the id counter for rollback.
func (m *MemoryRepo) Snapshot() func() {
	m.mu.RLock()
	rows := make(map[int64]*Record, len(m.rows))
	for id, r := range m.rows {
		rows[id] = cloneRecord(r)
	}
	nextID := m.nextID
	m.mu.RUnlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows, m.nextID = rows, nextID
	}
}

// checkUnique mirrors the unique indexes of the SQL schema. Callers hold mu.
func (m *MemoryRepo) checkUnique(r *Record) error {
	caps := r.Capabilities()
	for id, other := range m.rows {
		if id == r.ID || other.Kind != r.Kind {
			continue
		}
		if caps.Singleton && other.OwnerID == r.OwnerID {
			return fmt.Errorf("%s for owner %d: %w", r.Kind, r.OwnerID, ErrDuplicate)
		}
		if d, od := r.Demographics(), other.Demographics(); d != nil && od != nil &&
			d.NHSNumber != "" && d.NHSNumber == od.NHSNumber {
			return fmt.Errorf("demographics nhs_number=%s: %w", d.NHSNumber, ErrDuplicate)
		}
	}
	return nil
}

func cloneRecord(r *Record) *Record {
	c := *r
	c.Fields = cloneFields(r.Fields)
	return &c
}

func cloneFields(f Fields) Fields {
	switch t := f.(type) {
	case *Demographics:
		c := *t
		return &c
	case *Allergy:
		c := *t
		return &c
	case *Location:
		c := *t
		return &c
	case *Investigation:
		c := *t
		return &c
	case *Treatment:
		c := *t
		return &c
	case *Diagnosis:
		c := *t
		return &c
	case *Tagging:
		c := *t
		c.Teams = append([]string(nil), t.Teams...)
		return &c
	default:
		return f
	}
}
