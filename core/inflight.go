package orchestration

import (
	"sync"
	"time"
)

// RunSnapshot is the state of a run that has not returned yet.
type RunSnapshot struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at"`
	State     TurnState `json:"state"`
}

type inFlightRuns struct {
	mu   sync.RWMutex
	runs map[string]RunSnapshot
}

func newInFlightRuns() *inFlightRuns {
	return &inFlightRuns{runs: map[string]RunSnapshot{}}
}

func (r *inFlightRuns) start(state TurnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[state.RunID] = RunSnapshot{RunID: state.RunID, StartedAt: time.Now(), State: state}
}

func (r *inFlightRuns) update(stage string, state TurnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.runs[state.RunID]
	if !ok {
		return
	}
	snapshot.Stage = stage
	snapshot.State = Merge(state, TurnUpdate{})
	r.runs[state.RunID] = snapshot
}

func (r *inFlightRuns) finish(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

func (r *inFlightRuns) get(runID string) (RunSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot, ok := r.runs[runID]
	return snapshot, ok
}
