package playground

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// listLimit caps how many runs List returns.
const listLimit = 20

// Store keeps simulation runs in memory. Runs are small and disposable, so
// there is no persistence; a restart clears the lab history.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
	rng  *rand.Rand
	now  func() time.Time
}

// NewStore creates an empty run store. A nil clock defaults to time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		runs: make(map[string]*Run),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  now,
	}
}

// Create simulates a run and stores it.
func (s *Store) Create(model string, params Params) (*Run, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if params.LookbackPeriod < 1 {
		return nil, fmt.Errorf("lookback period must be at least 1 day")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	points := Simulate(model, params, s.rng)
	started := s.now()
	run := &Run{
		ID:          "run_" + uuid.New().String(),
		Model:       model,
		Parameters:  params,
		Status:      StatusCompleted,
		FinalReturn: FinalReturn(points),
		DataPoints:  points,
		StartedAt:   started,
		CompletedAt: started,
	}
	s.runs[run.ID] = run
	return run, nil
}

// List returns the most recent runs, newest first, capped at 20.
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out
}

// Get returns a run by ID.
func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// Delete removes a run. It reports whether the run existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	return true
}
