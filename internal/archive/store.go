// Package archive checkpoints the latest reconciled index snapshot to
// PostgreSQL, one upserted row per slot. Only the latest state is kept; this
// is an operational backup, not a change history.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvkrishnan/photoindex/internal/index"
	"github.com/mvkrishnan/photoindex/pkg/postgres"
)

// Store persists slot checkpoints in PostgreSQL.
//
// It requires an `index_checkpoints` table:
//
//	CREATE TABLE index_checkpoints (
//	    id         TEXT PRIMARY KEY,
//	    data       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a checkpoint store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "checkpoint-store"),
	}
}

// Save upserts one checkpoint row per slot with the snapshot's counters.
// Both rows are written in one transaction so a checkpoint is never half
// applied.
func (s *Store) Save(ctx context.Context, set index.IndexSet) error {
	slots := map[string]index.CounterMap{
		index.SlotTags:   set.Tags,
		index.SlotPeople: set.People,
	}
	now := time.Now().UTC()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for slot, counters := range slots {
			data, err := json.Marshal(counters)
			if err != nil {
				return fmt.Errorf("marshaling %s checkpoint: %w", slot, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO index_checkpoints (id, data, updated_at) VALUES ($1, $2, $3)
				 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
				slot, data, now,
			)
			if err != nil {
				return fmt.Errorf("saving %s checkpoint: %w", slot, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("checkpoint saved",
		"tags_keys", len(set.Tags),
		"people_keys", len(set.People),
	)
	return nil
}

// Latest loads the most recent checkpoint for a slot. Returns nil, nil when
// the slot has never been checkpointed.
func (s *Store) Latest(ctx context.Context, slot string) (index.CounterMap, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM index_checkpoints WHERE id = $1`,
		slot,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s checkpoint: %w", slot, err)
	}

	var counters index.CounterMap
	if err := json.Unmarshal(data, &counters); err != nil {
		return nil, fmt.Errorf("unmarshaling %s checkpoint: %w", slot, err)
	}
	return counters, nil
}

// StartPeriodicSave launches a goroutine that periodically reads the
// reconciled snapshot and checkpoints it, with a final checkpoint on
// shutdown.
func (s *Store) StartPeriodicSave(ctx context.Context, service *index.Service, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.checkpoint(ctx, service)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.checkpoint(shutdownCtx, service)
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic checkpoint started", "interval", interval)
}

func (s *Store) checkpoint(ctx context.Context, service *index.Service) {
	result, err := service.Read(ctx)
	if err != nil {
		s.logger.Error("checkpoint read failed", "error", err)
		return
	}
	if err := s.Save(ctx, result.Reconciled); err != nil {
		s.logger.Error("checkpoint save failed", "error", err)
	}
}
