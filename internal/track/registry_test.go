package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/falcon/internal/detect"
)

func det(trackID int, class detect.Class) detect.Detection {
	return detect.Detection{TrackID: trackID, Class: class, Confidence: 0.8}
}

func TestResolve_StableAcrossFrames(t *testing.T) {
	r := NewRegistry(20)
	at := time.UnixMilli(1718135772191)

	objs1, _ := r.Resolve([]detect.Detection{det(3, detect.ClassBird)}, at)
	require.Len(t, objs1, 1)
	assert.Equal(t, "17181357721913", objs1[0].ID)

	// Same track later keeps the same id; the instant does not re-enter it.
	objs2, _ := r.Resolve([]detect.Detection{det(3, detect.ClassBird)}, at.Add(5*time.Second))
	require.Len(t, objs2, 1)
	assert.Equal(t, objs1[0].ID, objs2[0].ID)
}

func TestResolve_ClassChangeMintsNewID(t *testing.T) {
	r := NewRegistry(20)
	at := time.UnixMilli(1000)

	objs1, _ := r.Resolve([]detect.Detection{det(1, detect.ClassPerson)}, at)
	objs2, _ := r.Resolve([]detect.Detection{det(1, detect.ClassVehicle)}, at.Add(time.Second))

	assert.NotEqual(t, objs1[0].ID, objs2[0].ID)
}

func TestResolve_EvictionAfterLostThreshold(t *testing.T) {
	r := NewRegistry(3)
	at := time.UnixMilli(1000)

	objs, _ := r.Resolve([]detect.Detection{det(7, detect.ClassAnimal)}, at)
	require.Len(t, objs, 1)
	lostID := objs[0].ID

	var evicted []string
	for i := 0; i < 3; i++ {
		assert.Empty(t, evicted)
		_, evicted = r.Resolve(nil, at.Add(time.Duration(i+1)*time.Second))
	}
	require.Len(t, evicted, 1)
	assert.Equal(t, lostID, evicted[0])
	assert.Equal(t, 0, r.Len())

	// The track number coming back is a new object, never the old id.
	objs2, _ := r.Resolve([]detect.Detection{det(7, detect.ClassAnimal)}, at.Add(time.Minute))
	assert.NotEqual(t, lostID, objs2[0].ID)
}

func TestResolve_MissCounterResetsOnSight(t *testing.T) {
	r := NewRegistry(3)
	at := time.UnixMilli(1000)

	r.Resolve([]detect.Detection{det(2, detect.ClassFOD)}, at)
	r.Resolve(nil, at)
	r.Resolve(nil, at)
	// Seen again before the threshold: counter resets.
	r.Resolve([]detect.Detection{det(2, detect.ClassFOD)}, at)

	_, evicted := r.Resolve(nil, at)
	assert.Empty(t, evicted)
	assert.Equal(t, 1, r.Len())
}
