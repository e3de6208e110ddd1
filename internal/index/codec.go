package index

import "github.com/mvkrishnan/photoindex/internal/storage"

// decodeRecords turns batch-read results into an IndexSet. A slot whose
// record is absent, or whose counter mapping is empty, decodes to the empty
// map: a slot never written to is not an error.
func decodeRecords(records map[string]storage.Record) IndexSet {
	set := IndexSet{Tags: CounterMap{}, People: CounterMap{}}
	if rec, ok := records[SlotTags]; ok && len(rec.Fields) > 0 {
		set.Tags = CounterMap(rec.Fields)
	}
	if rec, ok := records[SlotPeople]; ok && len(rec.Fields) > 0 {
		set.People = CounterMap(rec.Fields)
	}
	return set
}

// encodeRecords produces one record per slot, carrying that slot's complete
// counter mapping. Used only by the pruning write-back, which overwrites the
// stored mappings wholesale.
func encodeRecords(set IndexSet) []storage.Record {
	return []storage.Record{
		{ID: SlotTags, Fields: set.Tags},
		{ID: SlotPeople, Fields: set.People},
	}
}
