// Package memory provides an in-process PersonaRepository used for local
// runs and as the store behind service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/personas-api/internal/model"
	"github.com/jwalitptl/personas-api/internal/repository"
)

// PersonaStore keeps records in maps guarded by a single mutex.
type PersonaStore struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*model.Persona
	byDocument map[string]int64
	now        func() time.Time
}

func NewPersonaRepository() *PersonaStore {
	return &PersonaStore{
		byID:       make(map[int64]*model.Persona),
		byDocument: make(map[string]int64),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.PersonaRepository = (*PersonaStore)(nil)

// WithClock replaces the time source. Intended for tests.
func (r *PersonaStore) WithClock(now func() time.Time) *PersonaStore {
	r.now = now
	return r
}

func (r *PersonaStore) Create(ctx context.Context, persona *model.Persona) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byDocument[persona.DocumentNumber]; exists {
		return repository.ErrDuplicateDocument
	}

	r.nextID++
	now := r.now()
	persona.ID = r.nextID
	if persona.Status == "" {
		persona.Status = model.PersonaStatusActive
	}
	persona.CreatedAt = now
	persona.UpdatedAt = now

	r.byID[persona.ID] = clone(persona)
	r.byDocument[persona.DocumentNumber] = persona.ID
	return nil
}

func (r *PersonaStore) Get(ctx context.Context, id int64) (*model.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(p), nil
}

func (r *PersonaStore) GetByDocument(ctx context.Context, documentNumber string) (*model.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byDocument[documentNumber]
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

func (r *PersonaStore) List(ctx context.Context, filters *model.PersonaFilters) ([]*model.Persona, error) {
	if filters == nil {
		filters = &model.PersonaFilters{}
	}
	term := strings.ToLower(strings.TrimSpace(filters.SearchTerm))

	r.mu.RLock()
	matched := make([]*model.Persona, 0, len(r.byID))
	for _, p := range r.byID {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		if term != "" && !matchesSearch(p, term) {
			continue
		}
		matched = append(matched, clone(p))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filters.Skip >= len(matched) {
		return []*model.Persona{}, nil
	}
	matched = matched[filters.Skip:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

func matchesSearch(p *model.Persona, term string) bool {
	return strings.Contains(strings.ToLower(p.FirstName), term) ||
		strings.Contains(strings.ToLower(p.LastName), term) ||
		strings.Contains(strings.ToLower(p.DocumentNumber), term)
}

func (r *PersonaStore) Update(ctx context.Context, id int64, patch *model.PersonaPatch) (*model.Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	if patch != nil {
		patch.Apply(p)
	}
	p.UpdatedAt = r.now()
	return clone(p), nil
}

func (r *PersonaStore) SetStatus(ctx context.Context, id int64, status model.PersonaStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	p.Status = status
	p.UpdatedAt = r.now()
	return true, nil
}

func (r *PersonaStore) Ping(ctx context.Context) error {
	return nil
}

func clone(p *model.Persona) *model.Persona {
	c := *p
	c.Email = cloneString(p.Email)
	c.Phone = cloneString(p.Phone)
	c.Address = cloneString(p.Address)
	c.EmergencyContact = cloneString(p.EmergencyContact)
	c.Allergies = cloneString(p.Allergies)
	c.MedicalHistorySummary = cloneString(p.MedicalHistorySummary)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
