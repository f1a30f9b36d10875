package refdata

import (
	"context"
	"sync"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/parquetread"
)

type memKey struct {
	codeType string
	code     string
}

// MemoryStore holds reference codes in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	codes map[memKey]model.ReferenceCode
}

// NewMemoryStore returns a store seeded with codes.
func NewMemoryStore(codes ...model.ReferenceCode) *MemoryStore {
	s := &MemoryStore{codes: make(map[memKey]model.ReferenceCode, len(codes))}
	for _, rc := range codes {
		s.Put(rc)
	}
	return s
}

// Put adds or replaces a code.
func (s *MemoryStore) Put(rc model.ReferenceCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[memKey{rc.CodeType, rc.Code}] = rc
}

// Len returns the number of stored codes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, label, code string) (model.ReferenceCode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, table := range tablesFor(label) {
		if rc, ok := s.codes[memKey{table, code}]; ok {
			return rc, true, nil
		}
	}
	return model.ReferenceCode{}, false, nil
}

// LoadParquet reads a reference-code Parquet file into a MemoryStore.
func LoadParquet(path string) (*MemoryStore, parquetread.Stats, error) {
	r, err := parquetread.Open(path)
	if err != nil {
		return nil, parquetread.Stats{}, err
	}
	defer r.Close()

	s := NewMemoryStore()
	st, err := r.Each(func(rc model.ReferenceCode) error {
		s.Put(rc)
		return nil
	})
	if err != nil {
		return nil, st, err
	}
	return s, st, nil
}
