package jobs

import "sync"

// CancelRegistry carries cooperative cancellation requests from the HTTP
// layer to whichever worker is running the job. A running job polls
// Cancelled between items and winds down on its own schedule; finished or
// cancelled jobs clear their flag so ids can be reused.
type CancelRegistry struct {
	mu        sync.Mutex
	requested map[int]bool
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{requested: map[int]bool{}}
}

// Request flags a job for cancellation. Idempotent.
func (r *CancelRegistry) Request(jobID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested[jobID] = true
}

// Cancelled reports whether cancellation has been requested for a job.
func (r *CancelRegistry) Cancelled(jobID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requested[jobID]
}

// Clear removes any pending request for a job.
func (r *CancelRegistry) Clear(jobID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requested, jobID)
}
