package archive

import (
	"encoding/json"
	"net/http"

	"github.com/mvkrishnan/photoindex/internal/index"
)

// LatestHandler serves the most recent checkpoint for one slot. Route it
// with a "{slot}" path parameter.
func (s *Store) LatestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot := r.PathValue("slot")
		if slot != index.SlotTags && slot != index.SlotPeople {
			http.Error(w, `{"error":"unknown slot"}`, http.StatusNotFound)
			return
		}

		counters, err := s.Latest(r.Context(), slot)
		if err != nil {
			s.logger.Error("checkpoint lookup failed", "slot", slot, "error", err)
			http.Error(w, `{"error":"checkpoint lookup failed"}`, http.StatusInternalServerError)
			return
		}
		if counters == nil {
			http.Error(w, `{"error":"no checkpoint"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]any{
			"slot":      slot,
			"indexKeys": counters,
		}); err != nil {
			s.logger.Error("failed to write checkpoint response", "error", err)
		}
	}
}
