package index

import (
	"reflect"
	"testing"

	"github.com/mvkrishnan/photoindex/internal/storage"
)

func TestDecodeRecordsSubstitutesEmptyForAbsentSlots(t *testing.T) {
	records := map[string]storage.Record{
		SlotTags: {ID: SlotTags, Fields: map[string]int64{"red": 2}},
	}

	set := decodeRecords(records)

	if want := (CounterMap{"red": 2}); !reflect.DeepEqual(set.Tags, want) {
		t.Errorf("tags = %v, want %v", set.Tags, want)
	}
	if set.People == nil || len(set.People) != 0 {
		t.Errorf("people = %v, want empty non-nil map", set.People)
	}
}

func TestDecodeRecordsEmptyMappingDecodesToEmpty(t *testing.T) {
	records := map[string]storage.Record{
		SlotTags:   {ID: SlotTags, Fields: map[string]int64{}},
		SlotPeople: {ID: SlotPeople, Fields: map[string]int64{"alice": 1}},
	}

	set := decodeRecords(records)

	if len(set.Tags) != 0 {
		t.Errorf("tags = %v, want empty", set.Tags)
	}
	if set.People["alice"] != 1 {
		t.Errorf("people = %v", set.People)
	}
}

func TestDecodeRecordsNoRecordsAtAll(t *testing.T) {
	set := decodeRecords(map[string]storage.Record{})

	if len(set.Tags) != 0 || len(set.People) != 0 {
		t.Errorf("decoded = %v, want both slots empty", set)
	}
}

func TestEncodeRecordsCoversBothSlots(t *testing.T) {
	set := IndexSet{
		Tags:   CounterMap{"sunset": 3},
		People: CounterMap{},
	}

	records := encodeRecords(set)

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	byID := make(map[string]storage.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	if got := byID[SlotTags].Fields["sunset"]; got != 3 {
		t.Errorf("tags sunset = %d, want 3", got)
	}
	if rec, ok := byID[SlotPeople]; !ok || len(rec.Fields) != 0 {
		t.Errorf("people record = %+v, want present and empty", rec)
	}
}
