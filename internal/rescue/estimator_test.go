package rescue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/falcon/internal/detect"
)

func TestUpdate_LevelClimbsWithTimeDown(t *testing.T) {
	e := NewEstimator(5)
	t0 := time.UnixMilli(0)

	assert.Equal(t, 1, e.Update("obj1", detect.PoseFallen, t0))
	assert.Equal(t, 1, e.Update("obj1", detect.PoseFallen, t0.Add(500*time.Millisecond)))
	assert.Equal(t, 2, e.Update("obj1", detect.PoseFallen, t0.Add(1500*time.Millisecond)))
	assert.Equal(t, 4, e.Update("obj1", detect.PoseFallen, t0.Add(3*time.Second)))
	// Capped at the maximum.
	assert.Equal(t, 5, e.Update("obj1", detect.PoseFallen, t0.Add(time.Minute)))
}

func TestUpdate_UprightResets(t *testing.T) {
	e := NewEstimator(5)
	t0 := time.UnixMilli(0)

	e.Update("obj1", detect.PoseFallen, t0)
	assert.Equal(t, 0, e.Update("obj1", detect.PoseStanding, t0.Add(2*time.Second)))

	// Falling again starts the clock over.
	assert.Equal(t, 1, e.Update("obj1", detect.PoseFallen, t0.Add(10*time.Second)))
}

func TestUpdate_UnknownPoseClears(t *testing.T) {
	e := NewEstimator(5)
	t0 := time.UnixMilli(0)

	e.Update("obj1", detect.PoseFallen, t0)
	assert.Equal(t, 0, e.Update("obj1", detect.PoseUnknown, t0.Add(time.Second)))
}

func TestForget(t *testing.T) {
	e := NewEstimator(5)
	t0 := time.UnixMilli(0)

	e.Update("obj1", detect.PoseFallen, t0)
	e.Forget("obj1")

	// State is gone: next fallen observation starts at level 1.
	assert.Equal(t, 1, e.Update("obj1", detect.PoseFallen, t0.Add(time.Minute)))
}
