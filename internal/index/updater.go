package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/mvkrishnan/photoindex/internal/storage"
	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
)

// buildIncrement filters the slot's deltas and builds the increment request.
// Nil deltas (JSON null) are dropped; when no valid entries remain it returns
// nil, the "nothing to do" signal.
func buildIncrement(slot string, deltas map[string]*int64) *storage.IncrementRequest {
	valid := make(map[string]int64, len(deltas))
	for key, delta := range deltas {
		if delta == nil {
			continue
		}
		valid[key] = *delta
	}
	if len(valid) == 0 {
		return nil
	}
	return &storage.IncrementRequest{ID: slot, Deltas: valid}
}

// applyIncrement submits the built request, running the bootstrap protocol
// when the slot's counter mapping does not exist yet: initialize the mapping
// to empty (conditionally, so a concurrent initializer cannot be clobbered)
// and retry the increment exactly once. Whether this process won or lost the
// bootstrap race is irrelevant; either way the mapping exists afterwards.
// Every other failure is surfaced unretried.
func (s *Service) applyIncrement(ctx context.Context, req storage.IncrementRequest) (storage.Record, error) {
	rec, err := s.gateway.Increment(ctx, req)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperrors.ErrFieldPathMissing) {
		return storage.Record{}, err
	}

	created, initErr := s.gateway.Init(ctx, req.ID)
	if initErr != nil {
		return storage.Record{}, fmt.Errorf("bootstrapping slot %q: %w", req.ID, initErr)
	}
	s.recordBootstrap(created)
	s.logger.Info("bootstrapped counter mapping", "slot", req.ID, "created", created)

	return s.gateway.Increment(ctx, req)
}

// updateSlot composes buildIncrement and applyIncrement for one slot. A
// request with zero valid deltas yields a skipped result, not an error.
func (s *Service) updateSlot(ctx context.Context, slot string, deltas map[string]*int64) (*SlotResult, error) {
	req := buildIncrement(slot, deltas)
	if req == nil {
		s.recordUpdate(slot, "skipped", 0)
		s.logger.Debug("no valid deltas, skipping slot", "slot", slot)
		return &SlotResult{Skipped: true}, nil
	}

	rec, err := s.applyIncrement(ctx, *req)
	if err != nil {
		s.recordUpdate(slot, "error", 0)
		return nil, err
	}
	s.recordUpdate(slot, "applied", len(req.Deltas))
	return &SlotResult{Record: &rec}, nil
}
