// Package intern assigns stable surrogate ids to entities identified by
// a natural key. An Interner is created for one load run, optionally
// seeded with the ids already present in the store, and discarded when
// the run ends.
package intern

import (
	"fmt"
	"strconv"
)

// Kind names an entity table whose rows are interned
type Kind int

// Interned entity kinds
const (
	Paper Kind = iota
	Author
	Task
	Method
	Area
	Category
	Dataset
	Evaluation
	EvalCategory
	EvalDataset
	EvalResult
	numKinds
)

var kindNames = [numKinds]string{
	Paper:        "paper",
	Author:       "author",
	Task:         "task",
	Method:       "method",
	Area:         "area",
	Category:     "category",
	Dataset:      "dataset",
	Evaluation:   "evaluation",
	EvalCategory: "evaluation_category",
	EvalDataset:  "evaluation_dataset",
	EvalResult:   "evaluation_result",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every interned kind in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Counts reports how ids of one kind were handed out during a run
type Counts struct {
	Preloaded int // ids read from the store at startup
	Created   int // new ids allocated this run
	Reused    int // lookups answered from the cache
}

type table struct {
	ids     map[string]int64
	claimed map[string]bool
	next    int64
	counts  Counts
}

// Interner maps natural keys to surrogate ids, per kind. Keys are
// compared byte for byte: two authors with the same name string are the
// same author. It is not safe for concurrent use; a run owns it.
type Interner struct {
	tables [numKinds]*table
}

// New creates an empty Interner. Ids start at 1 for every kind.
func New() *Interner {
	in := &Interner{}
	for k := range in.tables {
		in.tables[k] = &table{
			ids:     make(map[string]int64),
			claimed: make(map[string]bool),
			next:    1,
		}
	}
	return in
}

// Preload records an id that already exists in the store. It does not
// count as a claim, so the first record seen this run for the key is
// still reported as first by Claim.
func (in *Interner) Preload(kind Kind, key string, id int64) {
	t := in.tables[kind]
	if _, ok := t.ids[key]; !ok {
		t.counts.Preloaded++
	}
	t.ids[key] = id
	if id >= t.next {
		t.next = id + 1
	}
}

// Intern returns the id for key, allocating one on first sight.
// created reports whether the id was allocated by this call.
func (in *Interner) Intern(kind Kind, key string) (id int64, created bool) {
	t := in.tables[kind]
	if id, ok := t.ids[key]; ok {
		t.counts.Reused++
		return id, false
	}
	id = t.next
	t.next++
	t.ids[key] = id
	t.counts.Created++
	return id, true
}

// Claim interns key and reports whether this is the first claim on it
// during the run. Entity rows are emitted only on the first claim so a
// repeated natural key keeps the first record's attributes.
func (in *Interner) Claim(kind Kind, key string) (id int64, first bool) {
	id, _ = in.Intern(kind, key)
	t := in.tables[kind]
	if t.claimed[key] {
		return id, false
	}
	t.claimed[key] = true
	return id, true
}

// Claimed reports whether key has been claimed this run
func (in *Interner) Claimed(kind Kind, key string) bool {
	return in.tables[kind].claimed[key]
}

// Lookup returns the id for key without allocating
func (in *Interner) Lookup(kind Kind, key string) (int64, bool) {
	id, ok := in.tables[kind].ids[key]
	return id, ok
}

// Len returns the number of keys known for kind
func (in *Interner) Len(kind Kind) int {
	return len(in.tables[kind].ids)
}

// Counts returns the allocation counters for kind
func (in *Interner) Counts(kind Kind) Counts {
	return in.tables[kind].counts
}

// EvalDatasetKey is the natural key of a leaderboard: datasets are named
// per evaluation, so the same name under two evaluations is two rows.
func EvalDatasetKey(evaluationID int64, name string) string {
	return strconv.FormatInt(evaluationID, 10) + "\x00" + name
}

// EvalResultKey is the natural key of a leaderboard row: one model per
// paper on one leaderboard.
func EvalResultKey(datasetID int64, modelName, paperURL string) string {
	return strconv.FormatInt(datasetID, 10) + "\x00" + modelName + "\x00" + paperURL
}
