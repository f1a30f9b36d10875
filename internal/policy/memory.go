package policy

import (
	"context"
	"sync"

	"github.com/gyeh/billadj/internal/model"
)

// MemoryStore keeps policies in a map keyed by patient.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*model.Policy
}

// NewMemoryStore returns a store seeded with policies.
func NewMemoryStore(policies ...*model.Policy) *MemoryStore {
	s := &MemoryStore{policies: make(map[string]*model.Policy, len(policies))}
	for _, p := range policies {
		s.Put(p)
	}
	return s
}

// Put adds or replaces the policy for p.PatientID.
func (s *MemoryStore) Put(p *model.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.PatientID] = p
}

// All returns every stored policy.
func (s *MemoryStore) All() []*model.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out
}

// Active implements Store. The returned policy is a copy the caller may not
// mutate shared maps through.
func (s *MemoryStore) Active(ctx context.Context, patientID, providerID string) (*model.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[patientID]
	if !ok {
		p, ok = s.policies[WildcardPatient]
	}
	if !ok {
		return nil, &NotFoundError{PatientID: patientID}
	}
	cp := *p
	return &cp, nil
}
