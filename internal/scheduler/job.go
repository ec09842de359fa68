package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	// Schedule returns the cron expression with a leading seconds field,
	// e.g. "0 0 */6 * * *", or a descriptor such as "@every 30m"
	Schedule() string
}

// JobResult is the outcome of one run, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// MaxHistory is the number of results kept per job
const MaxHistory = 100

// JobHistory keeps the latest MaxHistory results of a job.
// Lifetime counters survive trimming. Not safe for concurrent use;
// the scheduler guards it with its own lock.
type JobHistory struct {
	results []JobResult

	total       int
	failures    int
	lastSuccess *JobResult
	lastFailure *JobResult
}

// Add records a result, dropping the oldest beyond MaxHistory
func (h *JobHistory) Add(result JobResult) {
	h.results = append(h.results, result)
	if len(h.results) > MaxHistory {
		h.results = append(h.results[:0:0], h.results[len(h.results)-MaxHistory:]...)
	}

	h.total++
	r := result
	if result.Success {
		h.lastSuccess = &r
	} else {
		h.failures++
		h.lastFailure = &r
	}
}

// Latest returns a copy of up to n most recent results, oldest first
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.results) {
		n = len(h.results)
	}
	out := make([]JobResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

// Failed returns the kept failed results, oldest first
func (h *JobHistory) Failed() []JobResult {
	failed := make([]JobResult, 0)
	for _, r := range h.results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// SuccessRate is the lifetime share of successful runs (0 when never run)
func (h *JobHistory) SuccessRate() float64 {
	if h.total == 0 {
		return 0
	}
	return float64(h.total-h.failures) / float64(h.total)
}

func (h *JobHistory) clone() *JobHistory {
	c := *h
	c.results = h.Latest(len(h.results))
	return &c
}
