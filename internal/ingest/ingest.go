// Package ingest folds asset events from Kafka into index updates. Each
// event names an asset's tags and people; adding an asset increments the
// matching counters, removing it decrements them.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mvkrishnan/photoindex/internal/index"
	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
	"github.com/mvkrishnan/photoindex/pkg/kafka"
)

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// AssetEvent is the wire shape of one asset change.
type AssetEvent struct {
	AssetID string   `json:"asset_id"`
	Action  string   `json:"action"`
	Tags    []string `json:"tags,omitempty"`
	People  []string `json:"people,omitempty"`
}

// Update converts the event into an IndexUpdate: +1 per named key on add,
// -1 on remove. Duplicate keys within one event accumulate.
func (e AssetEvent) Update() (index.IndexUpdate, error) {
	var delta int64
	switch e.Action {
	case ActionAdd:
		delta = 1
	case ActionRemove:
		delta = -1
	default:
		return index.IndexUpdate{}, fmt.Errorf("%w: unknown action %q", apperrors.ErrInvalidInput, e.Action)
	}

	var update index.IndexUpdate
	if len(e.Tags) > 0 {
		update.Tags = foldKeys(e.Tags, delta)
	}
	if len(e.People) > 0 {
		update.People = foldKeys(e.People, delta)
	}
	return update, nil
}

func foldKeys(keys []string, delta int64) map[string]*int64 {
	out := make(map[string]*int64, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if cur, ok := out[key]; ok {
			*cur += delta
		} else {
			d := delta
			out[key] = &d
		}
	}
	return out
}

// HandleAsset returns the Kafka message handler applying asset events to the
// index. Undecodable or invalid events are logged and dropped so a poison
// message cannot wedge the partition; storage failures are returned so the
// message is redelivered.
func HandleAsset(service *index.Service) kafka.MessageHandler {
	log := slog.Default().With("component", "asset-ingest")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[AssetEvent](value)
		if err != nil {
			log.Error("dropping undecodable asset event", "key", string(key), "error", err)
			return nil
		}
		update, err := event.Update()
		if err != nil {
			log.Error("dropping invalid asset event",
				"asset_id", event.AssetID,
				"action", event.Action,
				"error", err,
			)
			return nil
		}
		if update.Tags == nil && update.People == nil {
			log.Debug("asset event names no keys", "asset_id", event.AssetID)
			return nil
		}

		if _, err := service.Update(ctx, update); err != nil {
			return fmt.Errorf("applying asset event %s: %w", event.AssetID, err)
		}
		log.Debug("asset event applied",
			"asset_id", event.AssetID,
			"action", event.Action,
			"tags", len(event.Tags),
			"people", len(event.People),
		)
		return nil
	}
}
