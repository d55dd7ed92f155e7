package core

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

// JobStatus is a state in the import job lifecycle.
type JobStatus string

const (
	StatusPending             JobStatus = "PENDING"
	StatusValidating          JobStatus = "VALIDATING"
	StatusProcessing          JobStatus = "PROCESSING"
	StatusCompleted           JobStatus = "COMPLETED"
	StatusCompletedWithErrors JobStatus = "COMPLETED_WITH_ERRORS"
	StatusFailed              JobStatus = "FAILED"
	StatusCancelled           JobStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions lists the allowed next states.
var transitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusValidating, StatusFailed, StatusCancelled},
	StatusValidating: {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled},
}

// ErrorSampleSize is how many errors are kept from each end of the run.
const ErrorSampleSize = 50

// ErrorSample keeps the first and the most recent row errors. Memory is
// bounded regardless of how many rows fail.
type ErrorSample struct {
	First  []FieldError `json:"first"`
	Recent []FieldError `json:"recent"`
	Next   int          `json:"next"` // Ring position in Recent once full
	Total  int          `json:"total"`
}

// Add records one error.
func (s *ErrorSample) Add(e FieldError) {
	s.Total++
	if len(s.First) < ErrorSampleSize {
		s.First = append(s.First, e)
		return
	}
	if len(s.Recent) < ErrorSampleSize {
		s.Recent = append(s.Recent, e)
		return
	}
	s.Recent[s.Next] = e
	s.Next = (s.Next + 1) % ErrorSampleSize
}

// List returns the sampled errors in file order.
func (s *ErrorSample) List() []FieldError {
	out := make([]FieldError, 0, len(s.First)+len(s.Recent))
	out = append(out, s.First...)
	out = append(out, s.Recent[s.Next:]...)
	out = append(out, s.Recent[:s.Next]...)
	return out
}

// Truncated reports whether errors were dropped from the middle.
func (s *ErrorSample) Truncated() bool {
	return s.Total > len(s.First)+len(s.Recent)
}

func (s ErrorSample) clone() ErrorSample {
	c := s
	c.First = append([]FieldError(nil), s.First...)
	c.Recent = append([]FieldError(nil), s.Recent...)
	return c
}

// Job is an import run. Only the job's own goroutine mutates it; everyone
// else reads copies.
type Job struct {
	ID         string    `json:"id"`
	Tenant     string    `json:"tenant"`
	ImportType string    `json:"importType"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	Status     JobStatus `json:"status"`
	Mode       Mode      `json:"mode"`
	Options    Options   `json:"options"`
	Estimate   Estimate  `json:"estimate"`

	HeaderLine    int               `json:"headerLine"`
	TotalRows     int               `json:"totalRows"`
	ProcessedRows int               `json:"processedRows"`
	SuccessCount  int               `json:"successCount"`
	ErrorCount    int               `json:"errorCount"`
	SkippedCount  int               `json:"skippedCount"`
	Decisions     map[Decision]int  `json:"decisions"`
	Errors        ErrorSample       `json:"errors"`
	Warnings      []headers.Warning `json:"warnings,omitempty"`
	AutoCreated   []EntityRef       `json:"autoCreated,omitempty"`
	Error         string            `json:"error,omitempty"`
	ErrorCode     string            `json:"errorCode,omitempty"`

	Seq        int64      `json:"seq"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewJob returns a PENDING job.
func NewJob(id, tenant, importType, fileName string, size int64, opts Options, now time.Time) *Job {
	return &Job{
		ID:         id,
		Tenant:     tenant,
		ImportType: importType,
		FileName:   fileName,
		FileSize:   size,
		Status:     StatusPending,
		Mode:       ModePoll,
		Options:    opts,
		Decisions:  make(map[Decision]int, len(Decisions)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// transition moves the job to next or returns an error if the move is not
// allowed.
func (j *Job) transition(next JobStatus, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrJobTerminal, j.Status, next)
	}
	for _, s := range transitions[j.Status] {
		if s == next {
			j.Status = next
			j.UpdatedAt = now
			if next == StatusValidating {
				t := now
				j.StartedAt = &t
			}
			if next.Terminal() {
				t := now
				j.FinishedAt = &t
			}
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", j.Status, next)
}

// fail moves the job to FAILED with a systemic cause.
func (j *Job) fail(err error, now time.Time) error {
	msg := MapError(err)
	j.Error = err.Error()
	j.ErrorCode = msg.Code
	return j.transition(StatusFailed, now)
}

// finish picks the terminal status from the counters.
func (j *Job) finish(now time.Time) error {
	if j.ErrorCount > 0 {
		return j.transition(StatusCompletedWithErrors, now)
	}
	return j.transition(StatusCompleted, now)
}

// recordRejected counts a row that failed validation.
func (j *Job) recordRejected(errs []FieldError, now time.Time) {
	j.ProcessedRows++
	j.ErrorCount++
	for _, e := range errs {
		j.Errors.Add(e)
	}
	j.UpdatedAt = now
}

// recordResolved counts a persisted or skipped row.
func (j *Job) recordResolved(res Resolution, now time.Time) {
	j.ProcessedRows++
	j.Decisions[res.Decision]++
	switch res.Decision {
	case DecisionNew, DecisionOverwritten:
		j.SuccessCount++
	case DecisionAutoCreatedReference:
		j.SuccessCount++
	case DecisionSkippedDuplicate:
		j.SkippedCount++
	}
	if res.Reference != nil {
		j.AutoCreated = append(j.AutoCreated, *res.Reference)
	}
	j.UpdatedAt = now
}

// Percent returns progress as 0-100.
func (j *Job) Percent() int {
	if j.Status.Terminal() && j.Status != StatusFailed && j.Status != StatusCancelled {
		return 100
	}
	if j.TotalRows <= 0 {
		return 0
	}
	return j.ProcessedRows * 100 / j.TotalRows
}

// Elapsed returns the time since the job started, or its total run time
// once finished.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(*j.StartedAt)
	}
	return now.Sub(*j.StartedAt)
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	c := *j
	c.Decisions = make(map[Decision]int, len(j.Decisions))
	for k, v := range j.Decisions {
		c.Decisions[k] = v
	}
	c.Errors = j.Errors.clone()
	c.Warnings = append([]headers.Warning(nil), j.Warnings...)
	c.AutoCreated = append([]EntityRef(nil), j.AutoCreated...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
