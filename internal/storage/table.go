// Package storage implements the durable index table on Redis. Each slot is
// one hash at "<table>:<slot>". Counter fields are stored under the "c:"
// prefix; the remaining fields are metadata: "_init" marks a bootstrapped
// counter mapping and "_updatedAt" carries the last-modified time in unix
// milliseconds. Counter keys are caller-supplied arbitrary strings, so the
// namespace prefix keeps any key, "_init" included, from colliding with
// metadata. Metadata fields never leak into Record.Fields.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
	"github.com/mvkrishnan/photoindex/pkg/metrics"
	pkgredis "github.com/mvkrishnan/photoindex/pkg/redis"
	"github.com/redis/go-redis/v9"
)

const (
	initField      = "_init"
	updatedAtField = "_updatedAt"
	counterPrefix  = "c:"
)

// incrementScript applies a batch of signed deltas to one slot hash in a
// single atomic evaluation. It refuses to write when the counter mapping has
// not been bootstrapped (no "_init" field), returning 0 so the caller can run
// the bootstrap protocol. Counter keys are caller-supplied arbitrary strings,
// so they travel as ARGV and are never spliced into the script source.
//
// ARGV[1] is the new "_updatedAt" value; ARGV[2..] are field/delta pairs,
// the fields already carrying the counter namespace prefix.
var incrementScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], '_init') == 0 then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HINCRBY', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('HSET', KEYS[1], '_updatedAt', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// Record is the stored shape of one slot: its id, the counter mapping, and
// the last-modified timestamp in unix milliseconds.
type Record struct {
	ID        string           `json:"id"`
	Fields    map[string]int64 `json:"indexKeys"`
	UpdatedAt int64            `json:"updatedAt"`
}

// IncrementRequest is a built batch of deltas against one slot.
type IncrementRequest struct {
	ID     string
	Deltas map[string]int64
}

// IndexTable is the storage gateway for the counter indexes.
type IndexTable struct {
	client  *pkgredis.Client
	table   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIndexTable creates an IndexTable on the named table. metrics may be nil.
func NewIndexTable(client *pkgredis.Client, table string, m *metrics.Metrics) *IndexTable {
	return &IndexTable{
		client:  client,
		table:   table,
		metrics: m,
		logger:  slog.Default().With("component", "index-table", "table", table),
	}
}

// Increment atomically applies req's deltas to the slot hash. Keys absent
// from the mapping start at zero. When the slot's counter mapping has not
// been bootstrapped the returned error matches apperrors.ErrFieldPathMissing
// and nothing is written.
func (t *IndexTable) Increment(ctx context.Context, req IncrementRequest) (Record, error) {
	defer t.observe("increment", time.Now())

	args := make([]interface{}, 0, 1+2*len(req.Deltas))
	args = append(args, strconv.FormatInt(time.Now().UnixMilli(), 10))
	for key, delta := range req.Deltas {
		args = append(args, counterPrefix+key, strconv.FormatInt(delta, 10))
	}

	reply, err := t.client.RunScript(ctx, incrementScript, []string{t.key(req.ID)}, args...)
	if err != nil {
		return Record{}, fmt.Errorf("%w: incrementing %q: %w", apperrors.ErrStorage, req.ID, err)
	}
	if n, ok := reply.(int64); ok && n == 0 {
		return Record{}, fmt.Errorf("%w: slot %q", apperrors.ErrFieldPathMissing, req.ID)
	}
	pairs, ok := reply.([]interface{})
	if !ok {
		return Record{}, fmt.Errorf("%w: unexpected reply %T for %q", apperrors.ErrStorage, reply, req.ID)
	}
	return parseReply(req.ID, pairs)
}

// Init bootstraps the slot's counter mapping to empty, guarded so that only
// one concurrent initializer wins. Losing the race is not an error and is
// reported through created=false.
func (t *IndexTable) Init(ctx context.Context, id string) (created bool, err error) {
	defer t.observe("init", time.Now())

	created, err = t.client.HSetNX(ctx, t.key(id), initField, "1")
	if err != nil {
		return false, fmt.Errorf("%w: initializing %q: %w", apperrors.ErrStorage, id, err)
	}
	return created, nil
}

// BatchGet fetches the named slots in one pipelined round trip. Slots never
// written to are simply absent from the result; that is not an error.
func (t *IndexTable) BatchGet(ctx context.Context, ids []string) (map[string]Record, error) {
	defer t.observe("batch_get", time.Now())

	cmds := make(map[string]*redis.MapStringStringCmd, len(ids))
	_, err := t.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds[id] = pipe.HGetAll(ctx, t.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: batch get: %w", apperrors.ErrStorage, err)
	}

	records := make(map[string]Record, len(ids))
	for id, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 {
			continue
		}
		rec, err := parseHash(id, raw)
		if err != nil {
			return nil, err
		}
		records[id] = rec
	}
	return records, nil
}

// BatchPut overwrites the given slots wholesale in one MULTI/EXEC pipeline:
// each slot hash is replaced by the record's counter mapping plus fresh
// metadata. A record with an empty mapping still leaves a bootstrapped,
// empty slot behind; slots are never deleted.
func (t *IndexTable) BatchPut(ctx context.Context, records []Record) error {
	defer t.observe("batch_put", time.Now())

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			key := t.key(rec.ID)
			values := make([]interface{}, 0, 4+2*len(rec.Fields))
			values = append(values, initField, "1", updatedAtField, now)
			for field, count := range rec.Fields {
				values = append(values, counterPrefix+field, strconv.FormatInt(count, 10))
			}
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: batch put: %w", apperrors.ErrStorage, err)
	}
	t.logger.Debug("slots overwritten", "count", len(records))
	return nil
}

// Ping reports storage reachability for health checks.
func (t *IndexTable) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *IndexTable) key(id string) string {
	return t.table + ":" + id
}

func (t *IndexTable) observe(op string, start time.Time) {
	if t.metrics != nil {
		t.metrics.StorageOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// parseReply converts a flat field/value script reply into a Record.
func parseReply(id string, pairs []interface{}) (Record, error) {
	raw := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		field, ok1 := pairs[i].(string)
		value, ok2 := pairs[i+1].(string)
		if !ok1 || !ok2 {
			return Record{}, fmt.Errorf("%w: malformed reply pair for %q", apperrors.ErrStorage, id)
		}
		raw[field] = value
	}
	return parseHash(id, raw)
}

// parseHash converts a raw slot hash into a Record. Fields under the "c:"
// prefix are counters, stripped back to the caller's key; everything else is
// metadata.
func parseHash(id string, raw map[string]string) (Record, error) {
	rec := Record{ID: id, Fields: make(map[string]int64, len(raw))}
	for field, value := range raw {
		key, isCounter := strings.CutPrefix(field, counterPrefix)
		if !isCounter {
			if field == updatedAtField {
				if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
					rec.UpdatedAt = ts
				}
			}
			continue
		}
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: parsing counter %q of %q: %w", apperrors.ErrStorage, key, id, err)
		}
		rec.Fields[key] = count
	}
	return rec, nil
}
