package loop

import (
	"context"
	"log"
	"sort"
	"time"
)

// System is one per-frame stage. Lower priorities run first within a
// frame.
type System interface {
	Name() string
	Priority() int
	Update(dt time.Duration) error
}

// Scheduler runs registered systems once per frame in priority order.
// Registration order breaks priority ties.
type Scheduler struct {
	systems []System
	logger  *log.Logger
}

func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{logger: logger}
}

// Register adds a system and re-sorts the run order.
func (s *Scheduler) Register(sys System) {
	s.systems = append(s.systems, sys)
	sort.SliceStable(s.systems, func(i, j int) bool {
		return s.systems[i].Priority() < s.systems[j].Priority()
	})
}

// RunFrame updates every system with the frame's elapsed time. A failing
// system is logged and the rest of the frame still runs; one bad system
// must not stall the others.
func (s *Scheduler) RunFrame(dt time.Duration) {
	for _, sys := range s.systems {
		if err := sys.Update(dt); err != nil {
			s.logger.Printf("loop: system %s: %v", sys.Name(), err)
		}
	}
}

// Run drives frames at the given interval until the context is done.
// The dt passed to systems is the measured wall time between frames, not
// the nominal interval.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.RunFrame(now.Sub(last))
			last = now
		}
	}
}

// Func adapts a plain function into a System.
type Func struct {
	SystemName     string
	SystemPriority int
	Fn             func(dt time.Duration) error
}

func (f Func) Name() string                  { return f.SystemName }
func (f Func) Priority() int                 { return f.SystemPriority }
func (f Func) Update(dt time.Duration) error { return f.Fn(dt) }
