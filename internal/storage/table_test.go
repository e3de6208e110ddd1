package storage

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/mvkrishnan/photoindex/pkg/config"
	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
	pkgredis "github.com/mvkrishnan/photoindex/pkg/redis"
)

func TestParseHashSeparatesMetadata(t *testing.T) {
	rec, err := parseHash("tags", map[string]string{
		"c:sunset":   "3",
		"c:beach":    "-1",
		"_init":      "1",
		"_updatedAt": "1700000000000",
	})
	if err != nil {
		t.Fatalf("parseHash: %v", err)
	}
	want := map[string]int64{"sunset": 3, "beach": -1}
	if !reflect.DeepEqual(rec.Fields, want) {
		t.Errorf("fields = %v, want %v", rec.Fields, want)
	}
	if rec.UpdatedAt != 1700000000000 {
		t.Errorf("updatedAt = %d, want 1700000000000", rec.UpdatedAt)
	}
}

func TestParseHashKeepsMetadataLookalikeKeys(t *testing.T) {
	// Counter keys are arbitrary caller strings; ones that happen to match
	// metadata field names must round-trip untouched.
	rec, err := parseHash("tags", map[string]string{
		"c:_director":  "3",
		"c:_init":      "2",
		"c:_updatedAt": "7",
		"_init":        "1",
		"_updatedAt":   "1700000000000",
	})
	if err != nil {
		t.Fatalf("parseHash: %v", err)
	}
	want := map[string]int64{"_director": 3, "_init": 2, "_updatedAt": 7}
	if !reflect.DeepEqual(rec.Fields, want) {
		t.Errorf("fields = %v, want %v", rec.Fields, want)
	}
	if rec.UpdatedAt != 1700000000000 {
		t.Errorf("updatedAt = %d, want metadata timestamp", rec.UpdatedAt)
	}
}

func TestParseHashRejectsNonNumericCounter(t *testing.T) {
	_, err := parseHash("tags", map[string]string{"c:sunset": "many"})
	if !errors.Is(err, apperrors.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
}

func TestParseReplyPairs(t *testing.T) {
	rec, err := parseReply("people", []interface{}{
		"c:alice", "2",
		"_init", "1",
	})
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if !reflect.DeepEqual(rec.Fields, map[string]int64{"alice": 2}) {
		t.Errorf("fields = %v", rec.Fields)
	}
}

// skipIfNoRedis skips the test when Redis is unavailable; set
// TEST_REDIS_ADDR to run against a local instance.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping integration test: TEST_REDIS_ADDR not set")
	}
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIndexTableLifecycle(t *testing.T) {
	client := skipIfNoRedis(t)
	table := NewIndexTable(client, "photoindex_test_"+time.Now().Format("150405.000"), nil)
	ctx := context.Background()

	// First increment hits an unbootstrapped slot.
	_, err := table.Increment(ctx, IncrementRequest{ID: "tags", Deltas: map[string]int64{"sunset": 2}})
	if !errors.Is(err, apperrors.ErrFieldPathMissing) {
		t.Fatalf("err = %v, want ErrFieldPathMissing", err)
	}

	created, err := table.Init(ctx, "tags")
	if err != nil || !created {
		t.Fatalf("Init = (%v, %v), want (true, nil)", created, err)
	}
	created, err = table.Init(ctx, "tags")
	if err != nil || created {
		t.Fatalf("second Init = (%v, %v), want (false, nil)", created, err)
	}

	rec, err := table.Increment(ctx, IncrementRequest{ID: "tags", Deltas: map[string]int64{"sunset": 2, "beach": -1}})
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if rec.Fields["sunset"] != 2 || rec.Fields["beach"] != -1 {
		t.Errorf("fields = %v", rec.Fields)
	}
	if rec.UpdatedAt == 0 {
		t.Error("updatedAt not set")
	}

	// Keys matching metadata field names are ordinary counters and must not
	// disturb the bootstrap marker.
	rec, err = table.Increment(ctx, IncrementRequest{ID: "tags", Deltas: map[string]int64{"_init": 5, "_director": 1}})
	if err != nil {
		t.Fatalf("Increment with metadata-lookalike keys: %v", err)
	}
	if rec.Fields["_init"] != 5 || rec.Fields["_director"] != 1 {
		t.Errorf("fields = %v, want _init=5 _director=1", rec.Fields)
	}
	if _, err := table.Increment(ctx, IncrementRequest{ID: "tags", Deltas: map[string]int64{"beach": -1}}); err != nil {
		t.Errorf("increment after metadata-lookalike keys: %v", err)
	}

	records, err := table.BatchGet(ctx, []string{"tags", "people"})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if _, ok := records["people"]; ok {
		t.Error("never-written slot came back from BatchGet")
	}
	if records["tags"].Fields["sunset"] != 2 {
		t.Errorf("tags = %v", records["tags"].Fields)
	}

	// Wholesale overwrite drops the negative counter.
	err = table.BatchPut(ctx, []Record{
		{ID: "tags", Fields: map[string]int64{"sunset": 2}},
		{ID: "people", Fields: map[string]int64{}},
	})
	if err != nil {
		t.Fatalf("BatchPut: %v", err)
	}
	records, err = table.BatchGet(ctx, []string{"tags", "people"})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if !reflect.DeepEqual(records["tags"].Fields, map[string]int64{"sunset": 2}) {
		t.Errorf("tags after put = %v", records["tags"].Fields)
	}
	// The overwritten empty slot exists and is bootstrapped.
	people, ok := records["people"]
	if !ok || len(people.Fields) != 0 {
		t.Errorf("people after put = %+v, want present and empty", people)
	}
	if _, err := table.Increment(ctx, IncrementRequest{ID: "people", Deltas: map[string]int64{"alice": 1}}); err != nil {
		t.Errorf("increment after wholesale put: %v", err)
	}
}
