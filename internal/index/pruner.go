package index

import (
	"context"
	"fmt"
)

// pruneMap drops every entry with a non-positive count. The input map is
// never mutated.
func pruneMap(m CounterMap) (CounterMap, int) {
	cleaned := make(CounterMap, len(m))
	dropped := 0
	for key, count := range m {
		if count > 0 {
			cleaned[key] = count
		} else {
			dropped++
		}
	}
	return cleaned, dropped
}

// prune enforces the "every stored counter > 0" invariant on a snapshot,
// slot by slot. It is idempotent: pruning a pruned set drops nothing.
func prune(set IndexSet) (cleaned IndexSet, dropped map[string]int) {
	dropped = make(map[string]int, len(Slots))
	cleaned.Tags, dropped[SlotTags] = pruneMap(set.Tags)
	cleaned.People, dropped[SlotPeople] = pruneMap(set.People)
	return cleaned, dropped
}

// Reconcile prunes the snapshot and, only when something was dropped,
// persists the complete pruned snapshot of both slots as the new
// authoritative state. The write-back is a wholesale overwrite with no
// optimistic lock: a concurrent increment landing between the read and this
// write can be overwritten. That race is accepted; overlapping reads are
// coalesced through singleflight in Service.Read, which narrows the window
// without closing it.
func (s *Service) Reconcile(ctx context.Context, set IndexSet) (IndexSet, error) {
	cleaned, dropped := prune(set)

	total := 0
	for slot, n := range dropped {
		total += n
		s.recordPruned(slot, n)
	}
	if total == 0 {
		s.recordPruneRun("clean")
		return cleaned, nil
	}

	if err := s.gateway.BatchPut(ctx, encodeRecords(cleaned)); err != nil {
		return IndexSet{}, fmt.Errorf("persisting pruned snapshot: %w", err)
	}
	s.recordPruneRun("pruned")
	s.logger.Info("pruned non-positive counters",
		"tags_dropped", dropped[SlotTags],
		"people_dropped", dropped[SlotPeople],
	)
	return cleaned, nil
}
