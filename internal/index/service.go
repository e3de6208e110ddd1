package index

import (
	"context"
	"log/slog"

	"github.com/mvkrishnan/photoindex/pkg/metrics"
	"github.com/mvkrishnan/photoindex/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

// Service composes the storage gateway with the update and pruning engines
// behind the API every ingress (HTTP, Kafka) shares.
type Service struct {
	gateway   Gateway
	metrics   *metrics.Metrics
	logger    *slog.Logger
	readGroup singleflight.Group
}

// NewService creates the index service. m may be nil.
func NewService(gateway Gateway, m *metrics.Metrics) *Service {
	return &Service{
		gateway: gateway,
		metrics: m,
		logger:  slog.Default().With("component", "index-service"),
	}
}

// Update applies the request's deltas slot by slot, sequentially and
// independently: the two slots share no transaction, so a failure on the
// second slot does not undo the first. Slots absent from the request are
// left alone; slots with zero valid deltas come back marked skipped.
func (s *Service) Update(ctx context.Context, update IndexUpdate) (UpdateResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "index.update")
	defer span.End()

	var result UpdateResult
	if update.Tags != nil {
		res, err := s.updateSlot(ctx, SlotTags, update.Tags)
		if err != nil {
			return UpdateResult{}, err
		}
		result.Tags = res
	}
	if update.People != nil {
		res, err := s.updateSlot(ctx, SlotPeople, update.People)
		if err != nil {
			return UpdateResult{}, err
		}
		result.People = res
	}
	return result, nil
}

// Read fetches both slots, decodes them, and reconciles the snapshot
// (pruning non-positive counters and writing the cleaned state back when
// anything was dropped). Concurrent reads collapse into a single storage
// round trip via singleflight, so overlapping prune write-backs do not
// trample each other. The coalesced execution runs detached from the
// initiating caller's cancellation; one canceled request must not fail the
// readers sharing its flight.
func (s *Service) Read(ctx context.Context) (ReadResult, error) {
	v, err, _ := s.readGroup.Do("read", func() (interface{}, error) {
		// The result is shared by every coalesced caller, so the shared
		// execution must not die with whichever caller arrived first.
		ctx, span := tracing.StartChildSpan(context.WithoutCancel(ctx), "index.read")
		defer span.End()

		records, err := s.gateway.BatchGet(ctx, Slots)
		if err != nil {
			return nil, err
		}
		snapshot := decodeRecords(records)
		reconciled, err := s.Reconcile(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		span.SetAttr("tags_keys", len(reconciled.Tags))
		span.SetAttr("people_keys", len(reconciled.People))
		return ReadResult{
			Records:    records,
			Snapshot:   snapshot,
			Reconciled: reconciled,
		}, nil
	})
	if err != nil {
		return ReadResult{}, err
	}
	return v.(ReadResult), nil
}

func (s *Service) recordUpdate(slot, outcome string, keys int) {
	if s.metrics == nil {
		return
	}
	s.metrics.IndexUpdatesTotal.WithLabelValues(slot, outcome).Inc()
	if keys > 0 {
		s.metrics.IndexKeysUpdated.WithLabelValues(slot).Add(float64(keys))
	}
}

func (s *Service) recordBootstrap(created bool) {
	if s.metrics == nil {
		return
	}
	outcome := "created"
	if !created {
		outcome = "lost_race"
	}
	s.metrics.BootstrapInitsTotal.WithLabelValues(outcome).Inc()
}

func (s *Service) recordPruneRun(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.PruneRunsTotal.WithLabelValues(outcome).Inc()
}

func (s *Service) recordPruned(slot string, n int) {
	if s.metrics == nil || n == 0 {
		return
	}
	s.metrics.PrunedEntriesTotal.WithLabelValues(slot).Add(float64(n))
}
