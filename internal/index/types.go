// Package index implements the counter-index core: the record codec, the
// atomic counter update engine with its bootstrap protocol, and the read-time
// pruning engine. Two fixed slots exist, "tags" and "people"; each maps
// arbitrary string keys to signed counts.
package index

import (
	"context"

	"github.com/mvkrishnan/photoindex/internal/storage"
)

// Slot identifiers. The service has exactly these two counter indexes.
const (
	SlotTags   = "tags"
	SlotPeople = "people"
)

// Slots lists the fixed slot identifiers in a stable order.
var Slots = []string{SlotTags, SlotPeople}

// CounterMap maps arbitrary string keys to signed counts. After pruning,
// every stored value is > 0.
type CounterMap map[string]int64

// IndexSet is the pair of slot mappings, the unit of read and of pruning.
type IndexSet struct {
	Tags   CounterMap `json:"tags"`
	People CounterMap `json:"people"`
}

// IndexUpdate is a requested batch of increments and decrements per slot.
// Deltas are pointers so a JSON null delta survives decoding and can be
// filtered out rather than treated as zero. An absent slot is untouched.
type IndexUpdate struct {
	Tags   map[string]*int64 `json:"tags,omitempty"`
	People map[string]*int64 `json:"people,omitempty"`
}

// SlotResult is the outcome of one slot's update: either the updated record
// or a skipped marker when no valid deltas were supplied.
type SlotResult struct {
	Skipped bool            `json:"skipped,omitempty"`
	Record  *storage.Record `json:"record,omitempty"`
}

// UpdateResult carries per-slot outcomes; a nil entry means the slot was not
// present in the request.
type UpdateResult struct {
	Tags   *SlotResult `json:"tags,omitempty"`
	People *SlotResult `json:"people,omitempty"`
}

// ReadResult carries the raw fetched records, the decoded snapshot, and the
// reconciled (pruned, possibly written-back) snapshot.
type ReadResult struct {
	Records    map[string]storage.Record `json:"records"`
	Snapshot   IndexSet                  `json:"snapshot"`
	Reconciled IndexSet                  `json:"reconciled"`
}

// Gateway is the storage contract the engines consume: atomic batched
// increment, conditional bootstrap, batch read, and wholesale batch
// overwrite.
type Gateway interface {
	Increment(ctx context.Context, req storage.IncrementRequest) (storage.Record, error)
	Init(ctx context.Context, id string) (created bool, err error)
	BatchGet(ctx context.Context, ids []string) (map[string]storage.Record, error)
	BatchPut(ctx context.Context, records []storage.Record) error
}
