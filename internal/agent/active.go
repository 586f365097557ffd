package agent

import (
	"bytes"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
)

// maxAbandonedJobs bounds the abandoned entries; the oldest one goes first.
const maxAbandonedJobs = 100

// activeJobs is the set of jobs handed to the agent. A job leaves it once its final status is
// reported; a job whose report failed stays in it, flagged as abandoned.
type activeJobs struct {
	mu sync.Mutex
	// zero time for a running job, the abandon time otherwise
	jobs      map[uuid.UUID]time.Time
	abandoned int
	now       func() time.Time
}

func newActiveJobs() *activeJobs {
	return &activeJobs{jobs: map[uuid.UUID]time.Time{}, now: time.Now}
}

func (a *activeJobs) add(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(id, time.Time{})
}

func (a *activeJobs) remove(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at, ok := a.jobs[id]; ok && !at.IsZero() {
		a.abandoned--
	}
	delete(a.jobs, id)
	a.updateGauge()
}

func (a *activeJobs) abandon(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(id, a.now())

	for a.abandoned > maxAbandonedJobs {
		var (
			oldest   uuid.UUID
			oldestAt time.Time
		)
		for jobID, at := range a.jobs {
			if !at.IsZero() && (oldestAt.IsZero() || at.Before(oldestAt)) {
				oldest, oldestAt = jobID, at
			}
		}
		delete(a.jobs, oldest)
		a.abandoned--
	}
	a.updateGauge()
}

// set must be called with mu held.
func (a *activeJobs) set(id uuid.UUID, at time.Time) {
	if prev, ok := a.jobs[id]; ok && !prev.IsZero() {
		a.abandoned--
	}
	if !at.IsZero() {
		a.abandoned++
	}
	a.jobs[id] = at
	a.updateGauge()
}

// updateGauge must be called with mu held.
func (a *activeJobs) updateGauge() {
	metrics.SetAgentActiveBuilds(len(a.jobs) - a.abandoned)
}

func (a *activeJobs) list(abandoned bool) []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(a.jobs))
	for id, at := range a.jobs {
		if at.IsZero() != abandoned {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(x, y uuid.UUID) int {
		return bytes.Compare(x[:], y[:])
	})
	return ids
}
