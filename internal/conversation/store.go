// Package conversation keeps per-thread agent state in process memory.
//
// Runs on the same thread are serialised; runs on different threads
// proceed concurrently. Threads idle longer than the TTL are removed by a
// cron-scheduled sweep, and the least recently used idle thread is
// evicted when the store grows past its capacity.
package conversation

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nugget/animalia/internal/agent"
)

// DefaultMaxThreads is the capacity used when Config.MaxThreads is zero.
const DefaultMaxThreads = 1000

// Config configures a Store.
type Config struct {
	// TTL is how long a thread may sit idle before the sweep removes it.
	// Zero disables expiry.
	TTL time.Duration

	// MaxThreads caps the number of stored threads.
	MaxThreads int

	// Sweep is a robfig/cron schedule for the TTL sweep. Start is a
	// no-op when it is empty.
	Sweep string

	Logger *slog.Logger
	Clock  func() time.Time
}

// entry holds one thread. lock serialises Update calls for the thread;
// every other field is guarded by Store.mu.
type entry struct {
	lock       sync.Mutex
	active     int // Update calls holding or waiting for lock
	state      agent.State
	stored     bool
	lastAccess time.Time
}

// Store maps thread IDs to their latest conversation state.
type Store struct {
	mu      sync.Mutex
	threads map[string]*entry

	ttl        time.Duration
	maxThreads int
	sweepSpec  string
	logger     *slog.Logger
	clock      func() time.Time

	cron *cron.Cron
}

// New creates a Store. Call Start to begin the periodic sweep.
func New(cfg Config) *Store {
	s := &Store{
		threads:    make(map[string]*entry),
		ttl:        cfg.TTL,
		maxThreads: cfg.MaxThreads,
		sweepSpec:  cfg.Sweep,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
	}
	if s.maxThreads <= 0 {
		s.maxThreads = DefaultMaxThreads
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Update runs fn with a copy of the thread's current state (empty for a
// new thread) and stores what fn returns. Concurrent calls for the same
// id run one at a time, in lock acquisition order. When fn fails or
// panics the stored state is left as it was; fn's error is returned.
func (s *Store) Update(id string, fn func(agent.State) (agent.State, error)) error {
	s.mu.Lock()
	e, ok := s.threads[id]
	if !ok {
		e = &entry{}
		s.threads[id] = e
	}
	e.active++
	e.lastAccess = s.clock()
	s.mu.Unlock()

	e.lock.Lock()
	defer e.lock.Unlock()

	s.mu.Lock()
	prior := e.state.Clone()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e.active--
		e.lastAccess = s.clock()
		if !e.stored && e.active == 0 && s.threads[id] == e {
			delete(s.threads, id)
		}
	}()

	next, err := fn(prior)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e.state = next.Clone()
	e.stored = true
	s.evictOverflowLocked(id)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored state for id.
func (s *Store) Get(id string) (agent.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.threads[id]
	if !ok || !e.stored {
		return agent.State{}, false
	}
	return e.state.Clone(), true
}

// Reset forgets a thread. A run already in progress on it still stores
// its result when it finishes.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.threads[id]
	if !ok {
		return
	}
	if e.active > 0 {
		e.state = agent.State{}
		e.stored = false
		return
	}
	delete(s.threads, id)
}

// Len returns the number of threads with stored state.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.threads {
		if e.stored {
			n++
		}
	}
	return n
}

// Sweep removes idle threads last touched more than the TTL before now
// and returns how many it removed. Threads with a run in progress are
// never removed. A zero TTL disables expiry.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.threads {
		if e.active == 0 && e.lastAccess.Before(cutoff) {
			delete(s.threads, id)
			removed++
		}
	}
	return removed
}

// evictOverflowLocked drops the least recently used idle threads until
// the store is within capacity. keep is never evicted. s.mu must be held.
func (s *Store) evictOverflowLocked(keep string) {
	over := len(s.threads) - s.maxThreads
	if over <= 0 {
		return
	}

	type candidate struct {
		id   string
		seen time.Time
	}
	var idle []candidate
	for id, e := range s.threads {
		if id != keep && e.active == 0 {
			idle = append(idle, candidate{id, e.lastAccess})
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].seen.Before(idle[j].seen) })

	for i := 0; i < over && i < len(idle); i++ {
		delete(s.threads, idle[i].id)
		s.logger.Debug("conversation evicted", "thread", idle[i].id, "last_access", idle[i].seen)
	}
}

// Start schedules the TTL sweep.
func (s *Store) Start() error {
	if s.sweepSpec == "" || s.ttl <= 0 {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.sweepSpec, func() {
		if n := s.Sweep(s.clock()); n > 0 {
			s.logger.Info("expired idle conversations", "removed", n, "remaining", s.Len())
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.sweepSpec, err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Debug("conversation sweep scheduled", "schedule", s.sweepSpec, "ttl", s.ttl)
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish.
func (s *Store) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
