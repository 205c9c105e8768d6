package aggregator

import (
	"sort"
	"sync"

	"github.com/android-debug-tools/bootlogger/pkg/avc"
)

// Merge folds b into a when both describe the same rule: b's operations are
// added to a and b becomes void. It is a no-op when either record is void or
// the rule keys differ. Residual attributes (name=, ino=, ...) do not take
// part in the comparison.
func Merge(a, b *avc.Record) bool {
	if a == nil || b == nil || a == b || a.Void || b.Void {
		return false
	}
	if a.Key() != b.Key() {
		return false
	}
	a.Operations = a.Operations.Union(b.Operations)
	b.Void = true
	return true
}

// MergeAll runs Merge over every ordered pair of records. Afterwards no two
// live records share a rule key.
func MergeAll(records []*avc.Record) {
	for i := range records {
		for j := range records {
			if i == j {
				continue
			}
			Merge(records[i], records[j])
		}
	}
}

// Aggregator deduplicates records by rule key, unioning the operations of
// every record that maps to the same key. Input records are not modified.
type Aggregator struct {
	mu      sync.RWMutex
	rules   map[avc.RuleKey]*avc.Record
	count   int64
	skipped int64
}

// New creates a new Aggregator.
func New() *Aggregator {
	return &Aggregator{
		rules: make(map[avc.RuleKey]*avc.Record),
	}
}

// Add records a parsed denial. Void records are counted and dropped.
func (a *Aggregator) Add(r *avc.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r == nil || r.Void {
		a.skipped++
		return
	}
	a.count++

	key := r.Key()
	if existing, ok := a.rules[key]; ok {
		existing.Operations.Insert(r.Operations.UnsortedList()...)
		return
	}
	a.rules[key] = r.Clone()
}

// Records returns one record per rule key, sorted deterministically.
// Order: Subject, Target, Class, denied before granted.
func (a *Aggregator) Records() []*avc.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*avc.Record, 0, len(a.rules))
	for _, r := range a.rules {
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return keyIsLess(result[i].Key(), result[j].Key())
	})

	return result
}

// keyIsLess compares two rule keys for deterministic sorting.
func keyIsLess(a, b avc.RuleKey) bool {
	if a.Subject != b.Subject {
		return a.Subject.Domain() < b.Subject.Domain()
	}
	if a.Target != b.Target {
		return a.Target.Domain() < b.Target.Domain()
	}
	if a.Class != b.Class {
		return a.Class < b.Class
	}
	return !a.Granted && b.Granted
}

// Len returns the number of distinct rule keys.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rules)
}

// RecordsProcessed returns the number of live records added.
func (a *Aggregator) RecordsProcessed() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

// Skipped returns the number of void records offered to Add.
func (a *Aggregator) Skipped() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.skipped
}
