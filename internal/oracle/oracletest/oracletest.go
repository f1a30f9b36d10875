// Package oracletest provides scriptable oracles for tests.
package oracletest

import (
	"context"
	"sync"

	"github.com/gyeh/billadj/internal/oracle"
)

// Func is an oracle.Oracle whose answers come from callbacks. It counts
// calls so tests can assert batching.
type Func struct {
	CompareFn func(ctx context.Context, label string, pairs []oracle.Pair) ([]*bool, error)
	JustifyFn func(ctx context.Context, procedures, diagnoses []oracle.Described) (map[string][]string, error)

	mu           sync.Mutex
	compareCalls int
	justifyCalls int
}

// CompareBatch implements oracle.Oracle.
func (f *Func) CompareBatch(ctx context.Context, label string, pairs []oracle.Pair) ([]*bool, error) {
	f.mu.Lock()
	f.compareCalls++
	f.mu.Unlock()
	if f.CompareFn == nil {
		return AllYes(len(pairs)), nil
	}
	return f.CompareFn(ctx, label, pairs)
}

// Justify implements oracle.Oracle.
func (f *Func) Justify(ctx context.Context, procedures, diagnoses []oracle.Described) (map[string][]string, error) {
	f.mu.Lock()
	f.justifyCalls++
	f.mu.Unlock()
	if f.JustifyFn == nil {
		return JustifyAll(procedures, diagnoses), nil
	}
	return f.JustifyFn(ctx, procedures, diagnoses)
}

// CompareCalls returns how many CompareBatch calls were made.
func (f *Func) CompareCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compareCalls
}

// JustifyCalls returns how many Justify calls were made.
func (f *Func) JustifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.justifyCalls
}

// AllYes returns n true judgments.
func AllYes(n int) []*bool {
	out := make([]*bool, n)
	for i := range out {
		t := true
		out[i] = &t
	}
	return out
}

// JustifyAll attributes every diagnosis to every procedure.
func JustifyAll(procedures, diagnoses []oracle.Described) map[string][]string {
	codes := make([]string, len(diagnoses))
	for i, d := range diagnoses {
		codes[i] = d.Code
	}
	out := make(map[string][]string, len(procedures))
	for _, p := range procedures {
		out[p.Code] = codes
	}
	return out
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
