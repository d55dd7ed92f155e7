package pubsub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/stockimport/internal/core"
)

func snap(jobID string, seq int64, terminal bool) core.Snapshot {
	status := core.StatusProcessing
	if terminal {
		status = core.StatusCompleted
	}
	return core.Snapshot{JobID: jobID, Seq: seq, Status: status, Terminal: terminal}
}

func drain(t *testing.T, ch <-chan core.Snapshot) []int64 {
	t.Helper()
	var seqs []int64
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return seqs
			}
			seqs = append(seqs, s.Seq)
		case <-timeout:
			t.Fatalf("channel not closed; received %v", seqs)
		}
	}
}

// ----------------------------------------------------------------------------
// Broker
// ----------------------------------------------------------------------------

func TestBroker_DeliversInOrderAndClosesOnTerminal(t *testing.T) {
	b := NewBroker(0)
	ch, _, err := b.Subscribe(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(1); i <= 3; i++ {
		_ = b.Publish(context.Background(), snap("job-1", i, false))
	}
	_ = b.Publish(context.Background(), snap("job-2", 99, false))
	_ = b.Publish(context.Background(), snap("job-1", 4, true))

	got := drain(t, ch)
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
	if n := b.Subscribers("job-1"); n != 0 {
		t.Errorf("Subscribers() = %d after terminal, want 0", n)
	}
}

func TestBroker_SlowSubscriberKeepsLatest(t *testing.T) {
	b := NewBroker(2)
	ch, _, err := b.Subscribe(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(1); i <= 10; i++ {
		_ = b.Publish(context.Background(), snap("job-1", i, i == 10))
	}

	got := drain(t, ch)
	if len(got) == 0 || got[len(got)-1] != 10 {
		t.Fatalf("got %v, want the terminal snapshot last", got)
	}
	if len(got) > 2 {
		t.Errorf("got %d snapshots, want at most the buffer size 2", len(got))
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())

	ch1, unsubscribe, _ := b.Subscribe(context.Background(), "job-1")
	ch2, _, _ := b.Subscribe(ctx, "job-1")
	if n := b.Subscribers("job-1"); n != 2 {
		t.Fatalf("Subscribers() = %d, want 2", n)
	}

	unsubscribe()
	unsubscribe() // idempotent
	if got := drain(t, ch1); len(got) != 0 {
		t.Errorf("unsubscribed channel received %v", got)
	}

	cancel()
	if got := drain(t, ch2); len(got) != 0 {
		t.Errorf("cancelled subscription received %v", got)
	}

	// Publishing with no subscribers is a no-op.
	if err := b.Publish(context.Background(), snap("job-1", 1, false)); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}

// ----------------------------------------------------------------------------
// RedisBus
// ----------------------------------------------------------------------------

func TestDecodeSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"jobId":"j1","secuencia":3,"estado":"PROCESSING"}`, false},
		{"not json", `progress`, true},
		{"no job id", `{"secuencia":3}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := decodeSnapshot(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (s.JobID != "j1" || s.Seq != 3) {
				t.Errorf("decodeSnapshot() = %+v", s)
			}
		})
	}
}

func TestRedisBus_Channel(t *testing.T) {
	b := NewRedisBus(nil, "", nil)
	if got := b.Channel("abc"); got != "stockimport:progress:abc" {
		t.Errorf("Channel() = %q", got)
	}
	b = NewRedisBus(nil, "tenant-x:", nil)
	if got := b.Channel("abc"); got != "tenant-x:abc" {
		t.Errorf("Channel() = %q", got)
	}
}

func TestRedisBus_RoundTrip(t *testing.T) {
	url := os.Getenv("STOCKIMPORT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STOCKIMPORT_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := NewRedisBus(rdb, "stockimport-test:", nil)
	ch, unsubscribe, err := b.Subscribe(ctx, "job-rt")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	for i := int64(1); i <= 3; i++ {
		if err := b.Publish(ctx, snap("job-rt", i, i == 3)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	got := drain(t, ch)
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}
