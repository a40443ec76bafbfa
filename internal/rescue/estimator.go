// Package rescue grades how urgently a fallen person needs help. The level
// grows with time spent down and resets the moment the person is upright
// again.
package rescue

import (
	"time"

	"github.com/technosupport/falcon/internal/detect"
)

const DefaultMaxLevel = 5

// Estimator tracks fall duration per object id. Single-caller, owned by the
// inference stage.
type Estimator struct {
	maxLevel int
	downAt   map[string]time.Time
}

func NewEstimator(maxLevel int) *Estimator {
	if maxLevel < 1 {
		maxLevel = DefaultMaxLevel
	}
	return &Estimator{
		maxLevel: maxLevel,
		downAt:   make(map[string]time.Time),
	}
}

// Update reports the rescue level for one observation. Level 0 means no
// rescue needed; from the first fallen frame the level is 1 and climbs one
// step per second on the ground, capped at the maximum.
func (e *Estimator) Update(objectID string, pose detect.Pose, at time.Time) int {
	if pose != detect.PoseFallen {
		delete(e.downAt, objectID)
		return 0
	}

	since, ok := e.downAt[objectID]
	if !ok {
		e.downAt[objectID] = at
		return 1
	}

	level := int(at.Sub(since).Seconds()) + 1
	if level > e.maxLevel {
		level = e.maxLevel
	}
	return level
}

// Forget drops state for objects the tracker evicted.
func (e *Estimator) Forget(objectIDs ...string) {
	for _, id := range objectIDs {
		delete(e.downAt, id)
	}
}
