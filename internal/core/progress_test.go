package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSnapshotOf(t *testing.T) {
	job := NewJob("j1", "acme", "products", "a.csv", 10, Options{}, jobNow)
	_ = job.transition(StatusValidating, jobNow)
	_ = job.transition(StatusProcessing, jobNow)
	job.TotalRows = 10
	for i := 0; i < 4; i++ {
		job.recordResolved(Resolution{Decision: DecisionNew}, jobNow)
	}

	s := SnapshotOf(job, jobNow.Add(4*time.Second))
	if s.Percent != 40 {
		t.Errorf("Percent = %d, want 40", s.Percent)
	}
	if s.ElapsedMs != 4000 {
		t.Errorf("ElapsedMs = %d, want 4000", s.ElapsedMs)
	}
	if s.EtaMs != 6000 {
		t.Errorf("EtaMs = %d, want 6000", s.EtaMs)
	}
	if s.Terminal {
		t.Error("running job reported terminal")
	}

	job.Decisions[DecisionNew] = 99
	if s.Decisions[DecisionNew] != 4 {
		t.Error("snapshot shares the job's decision map")
	}
}

func TestReporter_PublishSavesThenPushes(t *testing.T) {
	jobs := &fakeJobs{}
	bus := &fakeBus{}
	r := NewReporter(jobs, bus, 10, time.Hour, nil)
	ctx := context.Background()

	job := NewJob("j1", "acme", "products", "a.csv", 10, Options{}, jobNow)
	if err := r.Publish(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, job); err != nil {
		t.Fatal(err)
	}

	if len(jobs.saved) != 2 || len(bus.got) != 2 {
		t.Fatalf("saved %d, pushed %d, want 2 each", len(jobs.saved), len(bus.got))
	}
	if jobs.saved[0].Seq != 1 || bus.got[1].Seq != 2 {
		t.Errorf("sequence numbers saved=%d pushed=%d, want 1 and 2", jobs.saved[0].Seq, bus.got[1].Seq)
	}

	// Saved copies are independent of the live job.
	job.TotalRows = 50
	if jobs.saved[1].TotalRows != 0 {
		t.Error("saved job aliases the live job")
	}
}

func TestReporter_SaveFailure(t *testing.T) {
	jobs := &fakeJobs{err: errors.New("disk full")}
	bus := &fakeBus{}
	r := NewReporter(jobs, bus, 1, time.Hour, nil)

	if err := r.Publish(context.Background(), NewJob("j", "t", "p", "a.csv", 1, Options{}, jobNow)); err == nil {
		t.Fatal("Publish() should return the save error")
	}
	if len(bus.got) != 0 {
		t.Error("nothing should be pushed when the save fails")
	}
}

func TestReporter_BusFailureIsNotAnError(t *testing.T) {
	jobs := &fakeJobs{}
	r := NewReporter(jobs, &fakeBus{fail: true}, 1, time.Hour, nil)

	if err := r.Publish(context.Background(), NewJob("j", "t", "p", "a.csv", 1, Options{}, jobNow)); err != nil {
		t.Fatalf("Publish() error = %v, want nil", err)
	}
	if len(jobs.saved) != 1 {
		t.Error("job should still be saved")
	}
}

func TestTracker_CoalescesRows(t *testing.T) {
	jobs := &fakeJobs{}
	r := NewReporter(jobs, nil, 10, time.Hour, nil)
	tr := r.Track()
	ctx := context.Background()
	job := NewJob("j", "t", "p", "a.csv", 1, Options{}, jobNow)

	for i := 0; i < 25; i++ {
		if err := tr.Row(ctx, job); err != nil {
			t.Fatalf("Row() error = %v", err)
		}
	}
	// First row, then every 10th: rows 1, 11 and 21.
	if got := len(jobs.saved); got != 3 {
		t.Errorf("row publishes = %d, want 3", got)
	}

	if err := tr.Transition(ctx, job); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if got := len(jobs.saved); got != 4 {
		t.Errorf("after transition publishes = %d, want 4", got)
	}
}

func TestTracker_ReturnsSaveErrors(t *testing.T) {
	jobs := &fakeJobs{err: errors.New("disk full")}
	r := NewReporter(jobs, nil, 10, time.Hour, nil)
	tr := r.Track()
	ctx := context.Background()
	job := NewJob("j", "t", "p", "a.csv", 1, Options{}, jobNow)

	tests := []struct {
		name    string
		publish func() error
		wantErr bool
	}{
		{"first row publishes", func() error { return tr.Row(ctx, job) }, true},
		{"coalesced row", func() error { return tr.Row(ctx, job) }, false},
		{"transition", func() error { return tr.Transition(ctx, job) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.publish()
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
