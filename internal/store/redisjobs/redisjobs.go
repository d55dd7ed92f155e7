// Package redisjobs keeps job state in Redis so every instance behind a
// load balancer answers status queries for every job.
//
// Each job is a hash {seq, data} under prefix+jobID with a TTL refreshed on
// every save. Expiry replaces the retention sweep.
package redisjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// Defaults used when the constructor is given zero values.
const (
	DefaultPrefix = "stockimport:job:"
	DefaultTTL    = 24 * time.Hour
)

// saveScript writes the job unless the stored sequence number is newer.
// KEYS[1] job key; ARGV[1] seq; ARGV[2] JSON; ARGV[3] TTL in ms.
var saveScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'seq') or '-1')
if current > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Store is a core.JobStore backed by Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New returns a job store. Zero prefix or ttl take the defaults.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key holding jobID.
func (s *Store) Key(jobID string) string {
	return s.prefix + jobID
}

// Save implements core.JobStore. A save carrying an older sequence number
// than the stored one is ignored.
func (s *Store) Save(ctx context.Context, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	err = saveScript.Run(ctx, s.rdb, []string{s.Key(job.ID)}, job.Seq, data, s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get implements core.JobStore.
func (s *Store) Get(ctx context.Context, id string) (*core.Job, error) {
	data, err := s.rdb.HGet(ctx, s.Key(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job core.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Connect parses url, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}
