package index

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
)

func TestBuildIncrementSignalsNothingToDo(t *testing.T) {
	if req := buildIncrement(SlotTags, map[string]*int64{}); req != nil {
		t.Errorf("empty deltas: got %v, want nil", req)
	}
	if req := buildIncrement(SlotTags, map[string]*int64{"sunset": nil}); req != nil {
		t.Errorf("all-nil deltas: got %v, want nil", req)
	}
}

func TestBuildIncrementFiltersNilDeltas(t *testing.T) {
	req := buildIncrement(SlotTags, map[string]*int64{
		"sunset": ptr(3),
		"beach":  nil,
		"macro":  ptr(-1),
	})
	if req == nil {
		t.Fatal("got nil request")
	}
	if req.ID != SlotTags {
		t.Errorf("ID = %q, want %q", req.ID, SlotTags)
	}
	want := map[string]int64{"sunset": 3, "macro": -1}
	if !reflect.DeepEqual(req.Deltas, want) {
		t.Errorf("Deltas = %v, want %v", req.Deltas, want)
	}
}

func TestIncrementAgainstPriorState(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(SlotTags, map[string]int64{"a": 5})
	svc := NewService(gw, nil)

	res, err := svc.updateSlot(context.Background(), SlotTags, map[string]*int64{
		"a": ptr(3),
		"b": ptr(-1),
	})
	if err != nil {
		t.Fatalf("updateSlot: %v", err)
	}
	if res.Skipped || res.Record == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	want := map[string]int64{"a": 8, "b": -1}
	if !reflect.DeepEqual(res.Record.Fields, want) {
		t.Errorf("fields = %v, want %v", res.Record.Fields, want)
	}
}

func TestBootstrapInitializesThenRetriesOnce(t *testing.T) {
	gw := newFakeGateway()
	svc := NewService(gw, nil)

	res, err := svc.updateSlot(context.Background(), SlotPeople, map[string]*int64{
		"alice": ptr(1),
		"bob":   ptr(2),
	})
	if err != nil {
		t.Fatalf("updateSlot: %v", err)
	}
	want := map[string]int64{"alice": 1, "bob": 2}
	if !reflect.DeepEqual(res.Record.Fields, want) {
		t.Errorf("fields = %v, want exactly the requested deltas %v", res.Record.Fields, want)
	}
	if gw.incrementCalls != 2 {
		t.Errorf("increment calls = %d, want 2 (original + one retry)", gw.incrementCalls)
	}
	if gw.initCalls != 1 {
		t.Errorf("init calls = %d, want 1", gw.initCalls)
	}
}

func TestNonBootstrapErrorsAreNotRetried(t *testing.T) {
	gw := newFakeGateway()
	gw.failIncrement = fmt.Errorf("%w: connection refused", apperrors.ErrStorage)
	svc := NewService(gw, nil)

	_, err := svc.updateSlot(context.Background(), SlotTags, map[string]*int64{"sunset": ptr(1)})
	if !errors.Is(err, apperrors.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if gw.incrementCalls != 1 {
		t.Errorf("increment calls = %d, want 1 (no retry)", gw.incrementCalls)
	}
	if gw.initCalls != 0 {
		t.Errorf("init calls = %d, want 0", gw.initCalls)
	}
}

func TestConcurrentFirstWritersShareOneInitializer(t *testing.T) {
	gw := newFakeGateway()
	svc := NewService(gw, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Update(context.Background(), IndexUpdate{
				Tags: map[string]*int64{"sunset": ptr(1)},
			})
		}(i)
	}
	wg.Wait()

	for n, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", n, err)
		}
	}
	if gw.initCreated != 1 {
		t.Errorf("initializers that created the mapping = %d, want exactly 1", gw.initCreated)
	}
	gw.mu.Lock()
	got := gw.fields[SlotTags]["sunset"]
	gw.mu.Unlock()
	if got != 2 {
		t.Errorf("sunset = %d, want 2 (both increments applied)", got)
	}
}

func TestUpdateSkipsSlotsWithoutValidDeltas(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(SlotPeople, map[string]int64{"alice": 1})
	svc := NewService(gw, nil)

	result, err := svc.Update(context.Background(), IndexUpdate{
		Tags:   map[string]*int64{},
		People: map[string]*int64{"alice": ptr(1)},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result.Tags == nil || !result.Tags.Skipped {
		t.Errorf("tags result = %+v, want skipped", result.Tags)
	}
	if result.People == nil || result.People.Skipped {
		t.Errorf("people result = %+v, want applied", result.People)
	}
	if result.People.Record.Fields["alice"] != 2 {
		t.Errorf("alice = %d, want 2", result.People.Record.Fields["alice"])
	}
}

func TestUpdateLeavesAbsentSlotsAlone(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(SlotTags, map[string]int64{"sunset": 1})
	svc := NewService(gw, nil)

	result, err := svc.Update(context.Background(), IndexUpdate{
		Tags: map[string]*int64{"sunset": ptr(1)},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if result.People != nil {
		t.Errorf("people result = %+v, want nil for absent slot", result.People)
	}
	gw.mu.Lock()
	_, peopleTouched := gw.fields[SlotPeople]
	gw.mu.Unlock()
	if peopleTouched {
		t.Error("absent slot was written")
	}
}
