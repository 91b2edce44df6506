package jobs

import (
	"sync"
	"time"
)

// Status is the lifecycle phase of a tracked job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Record is a snapshot of a job's progress.
type Record struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Tracker keeps job records in memory. Finished records are evicted after the retention period.
type Tracker struct {
	retention time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	records map[string]*Record
}

// NewTracker builds a tracker.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Tracker{
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		records:   make(map[string]*Record),
	}
}

// Get returns a copy of the job record.
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked()
	rec, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (t *Tracker) queued(job Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked()
	t.records[job.ID] = &Record{ID: job.ID, Type: job.Type, Status: StatusQueued, EnqueuedAt: job.Enqueued}
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	delete(t.records, id)
	t.mu.Unlock()
}

func (t *Tracker) running(id string, attempt int) {
	t.update(id, func(rec *Record) {
		now := t.now()
		rec.Status = StatusRunning
		rec.Attempts = attempt
		rec.StartedAt = &now
	})
}

func (t *Tracker) retrying(id string, err error) {
	t.update(id, func(rec *Record) {
		rec.Status = StatusQueued
		rec.Error = err.Error()
	})
}

func (t *Tracker) succeeded(id, result string) {
	t.update(id, func(rec *Record) {
		now := t.now()
		rec.Status = StatusSucceeded
		rec.Result = result
		rec.Error = ""
		rec.FinishedAt = &now
	})
}

func (t *Tracker) failed(id string, err error) {
	t.update(id, func(rec *Record) {
		now := t.now()
		rec.Status = StatusFailed
		if err != nil {
			rec.Error = err.Error()
		}
		rec.FinishedAt = &now
	})
}

func (t *Tracker) update(id string, fn func(*Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[id]; ok {
		fn(rec)
	}
}

func (t *Tracker) evictLocked() {
	cutoff := t.now().Add(-t.retention)
	for id, rec := range t.records {
		if rec.FinishedAt != nil && rec.FinishedAt.Before(cutoff) {
			delete(t.records, id)
		}
	}
}
