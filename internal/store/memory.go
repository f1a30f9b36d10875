package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gyeh/billadj/internal/model"
)

// MemoryBills implements BillStore in process.
type MemoryBills struct {
	mu          sync.RWMutex
	bills       map[string]*model.Bill
	stages      map[string]*model.StageRecord
	transitions []Transition
	now         func() time.Time
}

// NewMemoryBills returns an empty in-memory bill store.
func NewMemoryBills() *MemoryBills {
	return &MemoryBills{
		bills:  make(map[string]*model.Bill),
		stages: make(map[string]*model.StageRecord),
		now:    time.Now,
	}
}

// SetClock replaces the store's time source.
func (m *MemoryBills) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func cloneBill(b *model.Bill) *model.Bill {
	cp := *b
	cp.Items = append([]model.LineItem(nil), b.Items...)
	cp.Diagnoses = append([]model.Diagnosis(nil), b.Diagnoses...)
	return &cp
}

// Create implements BillStore.
func (m *MemoryBills) Create(ctx context.Context, b *model.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[b.TableID]; ok {
		return ErrAlreadyExists
	}
	cp := cloneBill(b)
	now := m.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = model.StatusExtracted
	}
	m.bills[b.TableID] = cp
	return nil
}

// Get implements BillStore.
func (m *MemoryBills) Get(ctx context.Context, tableID string) (*model.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[tableID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBill(b), nil
}

// Transition implements BillStore.
func (m *MemoryBills) Transition(ctx context.Context, tableID string, from, to model.Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[tableID]
	if !ok {
		return ErrNotFound
	}
	if b.Status != from {
		return ErrStaleStatus
	}
	now := m.now()
	b.Status = to
	b.FailureReason = reason
	b.UpdatedAt = now
	m.transitions = append(m.transitions, Transition{TableID: tableID, From: from, To: to, Reason: reason, At: now})
	return nil
}

// Transitions returns the recorded history of one bill.
func (m *MemoryBills) Transitions(tableID string) []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Transition
	for _, tr := range m.transitions {
		if tr.TableID == tableID {
			out = append(out, tr)
		}
	}
	return out
}

// SaveStage implements BillStore.
func (m *MemoryBills) SaveStage(ctx context.Context, tableID string, rec *model.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[tableID]; !ok {
		return ErrNotFound
	}
	m.stages[tableID] = rec
	return nil
}

// LoadStage implements BillStore.
func (m *MemoryBills) LoadStage(ctx context.Context, tableID string) (*model.StageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.stages[tableID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// DeleteTemporary implements BillStore.
func (m *MemoryBills) DeleteTemporary(ctx context.Context, tableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bills[tableID]; ok {
		b.Items = nil
		b.Diagnoses = nil
	}
	delete(m.stages, tableID)
	return nil
}

// ListExpired implements BillStore.
func (m *MemoryBills) ListExpired(ctx context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bills []*model.Bill
	for id, b := range m.bills {
		_, staged := m.stages[id]
		hasTemp := len(b.Items) > 0 || len(b.Diagnoses) > 0 || staged
		if b.Status.IsTerminal() && b.UpdatedAt.Before(before) && hasTemp {
			bills = append(bills, b)
		}
	}
	return oldestIDs(bills, limit), nil
}

// ListByStatus implements BillStore.
func (m *MemoryBills) ListByStatus(ctx context.Context, statuses []model.Status, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[model.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var bills []*model.Bill
	for _, b := range m.bills {
		if want[b.Status] {
			bills = append(bills, b)
		}
	}
	return oldestIDs(bills, limit), nil
}

func oldestIDs(bills []*model.Bill, limit int) []string {
	sort.Slice(bills, func(i, j int) bool { return bills[i].UpdatedAt.Before(bills[j].UpdatedAt) })
	if limit > 0 && len(bills) > limit {
		bills = bills[:limit]
	}
	ids := make([]string, len(bills))
	for i, b := range bills {
		ids[i] = b.TableID
	}
	return ids
}

// MemoryResults implements ResultStore in process.
type MemoryResults struct {
	mu      sync.RWMutex
	results map[string]*model.Result
}

// NewMemoryResults returns an empty in-memory result store.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{results: make(map[string]*model.Result)}
}

// PutOnce implements ResultStore.
func (m *MemoryResults) PutOnce(ctx context.Context, r *model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[r.JobID]; ok {
		return ErrAlreadyExists
	}
	cp := *r
	m.results[r.JobID] = &cp
	return nil
}

// Get implements ResultStore.
func (m *MemoryResults) Get(ctx context.Context, jobID string) (*model.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[jobID]
	if !ok {
		return nil, ErrNotReady
	}
	cp := *r
	return &cp, nil
}

// Delete implements ResultStore.
func (m *MemoryResults) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, jobID)
	return nil
}

// DeleteOlderThan implements ResultStore.
func (m *MemoryResults) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.results {
		if r.CompletedAt.Before(before) {
			delete(m.results, id)
			n++
		}
	}
	return n, nil
}
