package care

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ehr/tracker/pkg/pagination"
)

// MemoryRepo keeps patients and episodes in process memory.
type MemoryRepo struct {
	mu          sync.RWMutex
	nextPatient int64
	nextEpisode int64
	patients    map[int64]*Patient
	episodes    map[int64]*Episode
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients: make(map[int64]*Patient),
		episodes: make(map[int64]*Episode),
	}
}

func (m *MemoryRepo) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPatient++
	p.ID = m.nextPatient
	c := *p
	m.patients[p.ID] = &c
	return nil
}

func (m *MemoryRepo) GetPatient(_ context.Context, id int64) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %d: %w", id, ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (m *MemoryRepo) ListPatients(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Patient, 0, len(m.patients))
	for _, p := range m.patients {
		c := *p
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, limit, offset), len(all), nil
}

func (m *MemoryRepo) CreateEpisode(_ context.Context, e *Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[e.PatientID]; !ok {
		return fmt.Errorf("episode for patient %d: %w", e.PatientID, ErrNotFound)
	}
	m.nextEpisode++
	e.ID = m.nextEpisode
	m.episodes[e.ID] = cloneEpisode(e)
	return nil
}

func (m *MemoryRepo) UpdateEpisode(_ context.Context, e *Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.episodes[e.ID]
	if !ok {
		return fmt.Errorf("episode %d: %w", e.ID, ErrNotFound)
	}
	if existing.PatientID != e.PatientID {
		return fmt.Errorf("episode %d cannot move to patient %d", e.ID, e.PatientID)
	}
	m.episodes[e.ID] = cloneEpisode(e)
	return nil
}

func (m *MemoryRepo) GetEpisode(_ context.Context, id int64) (*Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.episodes[id]
	if !ok {
		return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	return cloneEpisode(e), nil
}

func (m *MemoryRepo) ListEpisodes(_ context.Context, limit, offset int) ([]*Episode, int, error) {
	all := m.episodesWhere(func(*Episode) bool { return true })
	return page(all, limit, offset), len(all), nil
}

func (m *MemoryRepo) ListEpisodesByPatient(_ context.Context, patientID int64) ([]*Episode, error) {
	return m.episodesWhere(func(e *Episode) bool { return e.PatientID == patientID }), nil
}

func (m *MemoryRepo) episodesWhere(match func(*Episode) bool) []*Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Episode
	for _, e := range m.episodes {
		if match(e) {
			out = append(out, cloneEpisode(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot captures patients, episodes and id counters for rollback.
func (m *MemoryRepo) Snapshot() func() {
	m.mu.RLock()
	patients := make(map[int64]*Patient, len(m.patients))
	for id, p := range m.patients {
		c := *p
		patients[id] = &c
	}
	episodes := make(map[int64]*Episode, len(m.episodes))
	for id, e := range m.episodes {
		episodes[id] = cloneEpisode(e)
	}
	nextPatient, nextEpisode := m.nextPatient, m.nextEpisode
	m.mu.RUnlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.patients, m.episodes = patients, episodes
		m.nextPatient, m.nextEpisode = nextPatient, nextEpisode
	}
}

func page[T any](all []T, limit, offset int) []T {
	if limit <= 0 {
		return all
	}
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(all))
	return all[start:end]
}

func cloneEpisode(e *Episode) *Episode {
	c := *e
	if e.Start != nil {
		t := *e.Start
		c.Start = &t
	}
	if e.End != nil {
		t := *e.End
		c.End = &t
	}
	return &c
}
