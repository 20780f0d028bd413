// Package pacer implements the adaptive backlog-aware wait between flush
// iterations: a 100ms busy-poll that breaks early the deeper the backlog,
// bounding worst-case per-log latency to ~5s.
package pacer

import "time"

// Config holds the thresholds driving Wait's busy-poll. The zero value is
// invalid; use DefaultConfig.
type Config struct {
	PollInterval    time.Duration // granularity of each backlog check
	HighBacklog     int           // n above which Wait returns immediately
	MediumBacklog   int           // n at/above which MediumWait applies
	MediumWait      time.Duration // cumulative wait ceiling once MediumBacklog is hit
	MinBacklog      int           // n at/above which MaxWait applies
	MaxWait         time.Duration // cumulative wait ceiling once MinBacklog is hit
}

// DefaultConfig implements the 100ms/2.5s/5s backlog-depth table: poll
// every 100ms; break immediately above 2000; break at 2.5s once backlog
// reaches 1000; break at 5s once backlog reaches 1; otherwise keep
// sleeping.
func DefaultConfig() Config {
	return Config{
		PollInterval:  100 * time.Millisecond,
		HighBacklog:   2000,
		MediumBacklog: 1000,
		MediumWait:    2500 * time.Millisecond,
		MinBacklog:    1,
		MaxWait:       5000 * time.Millisecond,
	}
}

// Pacer computes the wait between successive FlushOnce iterations.
type Pacer struct {
	cfg Config
}

// New creates a Pacer with the given config. A zero Config is replaced with
// DefaultConfig.
func New(cfg Config) *Pacer {
	if cfg.PollInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Pacer{cfg: cfg}
}

// Backlog reports the current size of the active intake buffer; passed in
// rather than polled internally so Pacer stays decoupled from intake.Queue.
type Backlog func() int

// Wait busy-polls backlog() every PollInterval until one of the configured
// thresholds is met. While the backlog stays below MinBacklog no threshold
// is met, so the wait lasts until work arrives or cancelled reports true.
// cancelled is polled each iteration too, and breaks the wait immediately
// when it reports true.
func (p *Pacer) Wait(backlog Backlog, cancelled func() bool) {
	var waited time.Duration
	for {
		if cancelled != nil && cancelled() {
			return
		}

		n := backlog()
		switch {
		case n > p.cfg.HighBacklog:
			return
		case n >= p.cfg.MediumBacklog && waited >= p.cfg.MediumWait:
			return
		case n >= p.cfg.MinBacklog && waited >= p.cfg.MaxWait:
			return
		}

		time.Sleep(p.cfg.PollInterval)
		waited += p.cfg.PollInterval
	}
}
