package index

import (
	"context"
	"reflect"
	"testing"

	"github.com/mvkrishnan/photoindex/internal/storage"
)

func TestReadNeverErrorsOnUnwrittenSlots(t *testing.T) {
	gw := newFakeGateway()
	svc := NewService(gw, nil)

	result, err := svc.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("records = %v, want none", result.Records)
	}
	if len(result.Snapshot.Tags) != 0 || len(result.Snapshot.People) != 0 {
		t.Errorf("snapshot = %v, want empty slots", result.Snapshot)
	}
	if len(gw.puts) != 0 {
		t.Errorf("read of empty indexes triggered %d write-backs", len(gw.puts))
	}
}

func TestReadReconcilesAndReportsAllStages(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(SlotTags, map[string]int64{"sunset": 2, "beach": -1})
	gw.seed(SlotPeople, map[string]int64{"alice": 1, "bob": 0})
	svc := NewService(gw, nil)

	result, err := svc.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	// The raw records and decoded snapshot keep the dirty state.
	if got := result.Records[SlotTags].Fields["beach"]; got != -1 {
		t.Errorf("raw beach = %d, want -1", got)
	}
	if got := result.Snapshot.People["bob"]; got != 0 {
		t.Errorf("snapshot bob = %d, want 0", got)
	}

	// The reconciled snapshot is pruned.
	if want := (CounterMap{"sunset": 2}); !reflect.DeepEqual(result.Reconciled.Tags, want) {
		t.Errorf("reconciled tags = %v, want %v", result.Reconciled.Tags, want)
	}
	if want := (CounterMap{"alice": 1}); !reflect.DeepEqual(result.Reconciled.People, want) {
		t.Errorf("reconciled people = %v, want %v", result.Reconciled.People, want)
	}

	// And the pruned state was persisted.
	if len(gw.puts) != 1 {
		t.Fatalf("write-backs = %d, want 1", len(gw.puts))
	}
	gw.mu.Lock()
	stored := gw.fields[SlotTags]
	gw.mu.Unlock()
	if !reflect.DeepEqual(stored, map[string]int64{"sunset": 2}) {
		t.Errorf("stored tags = %v, want pruned state", stored)
	}
}

// ctxAwareGateway fails BatchGet when the passed context is already
// canceled, unlike fakeGateway which ignores ctx.
type ctxAwareGateway struct {
	*fakeGateway
}

func (g ctxAwareGateway) BatchGet(ctx context.Context, ids []string) (map[string]storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fakeGateway.BatchGet(ctx, ids)
}

func TestReadOutlivesCallerCancellation(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(SlotTags, map[string]int64{"sunset": 2})
	svc := NewService(ctxAwareGateway{gw}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Read(ctx)
	if err != nil {
		t.Fatalf("Read with canceled caller: %v", err)
	}
	if result.Reconciled.Tags["sunset"] != 2 {
		t.Errorf("reconciled tags = %v, want sunset=2", result.Reconciled.Tags)
	}
}

func TestReadAfterReconcileIsStable(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(SlotTags, map[string]int64{"sunset": 2, "beach": -1})
	svc := NewService(gw, nil)

	if _, err := svc.Read(context.Background()); err != nil {
		t.Fatalf("first Read: %v", err)
	}
	second, err := svc.Read(context.Background())
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if len(gw.puts) != 1 {
		t.Errorf("write-backs = %d, want 1 (second read found clean state)", len(gw.puts))
	}
	if !reflect.DeepEqual(second.Snapshot, second.Reconciled) {
		t.Errorf("second read still dirty: snapshot %v vs reconciled %v",
			second.Snapshot, second.Reconciled)
	}
}
