package redisjobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/stockimport/internal/core"
)

func TestNew_Defaults(t *testing.T) {
	s := New(nil, "", 0)
	if s.ttl != DefaultTTL {
		t.Errorf("ttl = %s, want %s", s.ttl, DefaultTTL)
	}
	if got := s.Key("abc"); got != "stockimport:job:abc" {
		t.Errorf("Key() = %q, want %q", got, "stockimport:job:abc")
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	if _, err := Connect(context.Background(), "http://not-redis"); err == nil {
		t.Error("Connect() should reject a non-redis URL")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	url := os.Getenv("STOCKIMPORT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STOCKIMPORT_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := Connect(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()

	s := New(rdb, "stockimport-test:job:", time.Minute)
	id := uuid.NewString()
	defer rdb.Del(context.Background(), s.Key(id))

	if _, err := s.Get(ctx, id); !errors.Is(err, core.ErrJobNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrJobNotFound", err)
	}

	job := core.NewJob(id, "acme", "productos", "p.csv", 10, core.Options{}, time.Now())
	job.Seq = 5
	job.ProcessedRows = 50
	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	stale := job.Clone()
	stale.Seq = 4
	stale.ProcessedRows = 40
	if err := s.Save(ctx, stale); err != nil {
		t.Fatalf("Save(stale) error = %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ProcessedRows != 50 || got.Seq != 5 {
		t.Errorf("got seq %d rows %d, want seq 5 rows 50", got.Seq, got.ProcessedRows)
	}

	ttl, err := rdb.PTTL(ctx, s.Key(id)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %s, want (0, 1m]", ttl)
	}
}
