package dispatch

import (
	"context"
	"sync"
	"time"
)

// RunwayRule raises a runway WARNING when high-confidence detections keep
// resolving to that runway for longer than the hold, and clears it again
// after a quiet period with no sightings.
type RunwayRule struct {
	machine *RiskMachine

	hold    time.Duration
	quiet   time.Duration
	minConf float64

	mu       sync.Mutex
	presence map[string]*runwayPresence // keyed by area name RWY_A / RWY_B
}

type runwayPresence struct {
	firstSeen time.Time
	lastSeen  time.Time
	warned    bool
}

func NewRunwayRule(machine *RiskMachine, hold, quiet time.Duration, minConf float64) *RunwayRule {
	return &RunwayRule{
		machine:  machine,
		hold:     hold,
		quiet:    quiet,
		minConf:  minConf,
		presence: make(map[string]*runwayPresence),
	}
}

func runwayForArea(areaName string) string {
	switch areaName {
	case "RWY_A":
		return "A"
	case "RWY_B":
		return "B"
	default:
		return ""
	}
}

// Observe feeds one detection's resolved area. Low-confidence and
// off-runway detections are ignored.
func (r *RunwayRule) Observe(areaName string, confidence float64, at time.Time) {
	runway := runwayForArea(areaName)
	if runway == "" || confidence < r.minConf {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.presence[areaName]
	if !ok || at.Sub(p.lastSeen) >= r.quiet {
		r.presence[areaName] = &runwayPresence{firstSeen: at, lastSeen: at}
		return
	}
	p.lastSeen = at
	if !p.warned && at.Sub(p.firstSeen) >= r.hold {
		p.warned = true
		r.machine.ProposeRunway(runway, RunwayWarning)
	}
}

// Tick clears runways whose presence went quiet. Call it periodically.
func (r *RunwayRule) Tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for areaName, p := range r.presence {
		if now.Sub(p.lastSeen) < r.quiet {
			continue
		}
		if p.warned {
			r.machine.ProposeRunway(runwayForArea(areaName), RunwayClear)
		}
		delete(r.presence, areaName)
	}
}

// Run drives Tick until ctx is done.
func (r *RunwayRule) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Tick(now)
		}
	}
}
