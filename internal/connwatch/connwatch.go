// Package connwatch tracks whether an external dependency, usually the
// language model provider, is reachable.
//
// A Monitor starts optimistic and probes immediately. After
// FailThreshold consecutive failures it reports the service down and
// re-probes with exponential backoff until a probe succeeds. While the
// service is up it is probed every Interval.
//
// This is distinct from httpkit's transport-level retry, which absorbs
// sub-second blips inside a single request. connwatch covers outages
// that last long enough to be worth telling users about.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Config configures a Monitor. Zero durations take the defaults shown.
type Config struct {
	// Name identifies the service in logs, e.g. "model".
	Name string

	// Probe checks service health. Must be safe for concurrent use.
	Probe ProbeFunc

	// Interval between probes while the service is up (default 60s).
	Interval time.Duration

	// RetryMin and RetryMax bound the backoff while the service is down
	// (default 2s and 60s).
	RetryMin time.Duration
	RetryMax time.Duration

	// ProbeTimeout limits a single probe (default 10s).
	ProbeTimeout time.Duration

	// FailThreshold is the number of consecutive failures before the
	// service is reported down (default 2).
	FailThreshold int

	// OnChange is called with the new readiness on every transition.
	// Optional; runs on the monitor goroutine and must not block.
	OnChange func(ready bool)

	Logger *slog.Logger
}

// Status is a snapshot of a Monitor's view of its service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Failures  int       `json:"failures"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Monitor probes a single service in the background.
type Monitor struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ready     bool
	failures  int
	lastErr   error
	lastCheck time.Time
}

// Start launches a Monitor that runs until ctx is cancelled or Stop is
// called. Panics if Probe is nil.
func Start(ctx context.Context, cfg Config) *Monitor {
	if cfg.Probe == nil {
		panic("connwatch: Config.Probe must not be nil")
	}
	if cfg.Name == "" {
		cfg.Name = "service"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 2 * time.Second
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = max(60*time.Second, cfg.RetryMin)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
		ready:  true,
	}
	go m.run(ctx)
	return m
}

// Ready reports whether the service is currently considered reachable.
// It is safe to call on a nil Monitor, which is always ready.
func (m *Monitor) Ready() bool {
	if m == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Status returns the current snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Name:      m.cfg.Name,
		Ready:     m.ready,
		Failures:  m.failures,
		LastCheck: m.lastCheck,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Stop cancels the monitor and waits for its goroutine to exit.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	backoff := m.cfg.RetryMin
	for {
		err := m.probe(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := m.cfg.Interval
		if m.record(err) {
			backoff = m.cfg.RetryMin
		} else if !m.Ready() {
			wait = backoff
			backoff = min(backoff*2, m.cfg.RetryMax)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.cfg.Probe(probeCtx)
}

// record stores a probe result, applies the state transition, and
// reports whether the probe succeeded.
func (m *Monitor) record(err error) bool {
	m.mu.Lock()
	m.lastErr = err
	m.lastCheck = time.Now()
	was := m.ready
	if err == nil {
		m.failures = 0
		m.ready = true
	} else {
		m.failures++
		if m.failures >= m.cfg.FailThreshold {
			m.ready = false
		}
	}
	now, failures := m.ready, m.failures
	m.mu.Unlock()

	log := m.cfg.Logger
	switch {
	case was && !now:
		log.Warn("service became unreachable", "service", m.cfg.Name, "failures", failures, "error", err)
	case !was && now:
		log.Info("service recovered", "service", m.cfg.Name)
	case err != nil:
		log.Debug("service probe failed", "service", m.cfg.Name, "failures", failures, "error", err)
	}
	if was != now && m.cfg.OnChange != nil {
		m.cfg.OnChange(now)
	}
	return err == nil
}
