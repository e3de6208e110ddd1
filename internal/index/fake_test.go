package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/mvkrishnan/photoindex/internal/storage"
	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
)

// fakeGateway mimics the index table's semantics in memory: increments fail
// with ErrFieldPathMissing until the slot is initialized, Init is
// first-writer-wins, and BatchPut overwrites slots wholesale.
type fakeGateway struct {
	mu          sync.Mutex
	fields      map[string]map[string]int64
	initialized map[string]bool

	incrementCalls int
	initCalls      int
	initCreated    int
	puts           [][]storage.Record

	failIncrement error // returned by every Increment when set
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		fields:      make(map[string]map[string]int64),
		initialized: make(map[string]bool),
	}
}

func (g *fakeGateway) Increment(ctx context.Context, req storage.IncrementRequest) (storage.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.incrementCalls++

	if g.failIncrement != nil {
		return storage.Record{}, g.failIncrement
	}
	if !g.initialized[req.ID] {
		return storage.Record{}, fmt.Errorf("%w: slot %q", apperrors.ErrFieldPathMissing, req.ID)
	}
	slot := g.fields[req.ID]
	if slot == nil {
		slot = make(map[string]int64)
		g.fields[req.ID] = slot
	}
	for key, delta := range req.Deltas {
		slot[key] += delta
	}
	return storage.Record{ID: req.ID, Fields: copyFields(slot), UpdatedAt: 1}, nil
}

func (g *fakeGateway) Init(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++

	if g.initialized[id] {
		return false, nil
	}
	g.initialized[id] = true
	if g.fields[id] == nil {
		g.fields[id] = make(map[string]int64)
	}
	g.initCreated++
	return true, nil
}

func (g *fakeGateway) BatchGet(ctx context.Context, ids []string) (map[string]storage.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	records := make(map[string]storage.Record)
	for _, id := range ids {
		if !g.initialized[id] {
			continue
		}
		records[id] = storage.Record{ID: id, Fields: copyFields(g.fields[id]), UpdatedAt: 1}
	}
	return records, nil
}

func (g *fakeGateway) BatchPut(ctx context.Context, records []storage.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.puts = append(g.puts, records)
	for _, rec := range records {
		g.initialized[rec.ID] = true
		g.fields[rec.ID] = copyFields(rec.Fields)
	}
	return nil
}

// seed installs a slot's counters directly, marking it bootstrapped.
func (g *fakeGateway) seed(id string, fields map[string]int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized[id] = true
	g.fields[id] = copyFields(fields)
}

func copyFields(fields map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func ptr(v int64) *int64 {
	return &v
}
