// Package track converts short-lived detector track numbers into stable
// object ids. A stable id is minted the first time a track is seen and is
// never reissued: the id embeds the millisecond instant of first sight, so
// an object that leaves and re-enters view gets a fresh identity.
package track

import (
	"strconv"
	"time"

	"github.com/technosupport/falcon/internal/detect"
)

// Object is a detection with its stable identity attached.
type Object struct {
	ID string
	detect.Detection
}

type entry struct {
	objectID string
	class    detect.Class
	misses   int
}

// Registry owns the track-to-object mapping for one camera pipeline. Not
// safe for concurrent use; the inference stage is its single caller.
type Registry struct {
	lostThreshold int
	entries       map[int]*entry
}

func NewRegistry(lostThreshold int) *Registry {
	if lostThreshold < 1 {
		lostThreshold = 20
	}
	return &Registry{
		lostThreshold: lostThreshold,
		entries:       make(map[int]*entry),
	}
}

// Resolve assigns stable ids to the frame's detections and ages out tracks
// absent from it. Evicted returns the object ids whose tracks passed the
// lost threshold this call, so downstream per-object state can be released.
func (r *Registry) Resolve(dets []detect.Detection, at time.Time) (objects []Object, evicted []string) {
	seen := make(map[int]bool, len(dets))

	objects = make([]Object, 0, len(dets))
	for _, d := range dets {
		seen[d.TrackID] = true
		e, ok := r.entries[d.TrackID]
		// A track number reused for a different class is a new object.
		if !ok || e.class != d.Class {
			e = &entry{
				objectID: strconv.FormatInt(at.UnixMilli(), 10) + strconv.Itoa(d.TrackID),
				class:    d.Class,
			}
			r.entries[d.TrackID] = e
		}
		e.misses = 0
		objects = append(objects, Object{ID: e.objectID, Detection: d})
	}

	for id, e := range r.entries {
		if seen[id] {
			continue
		}
		e.misses++
		if e.misses >= r.lostThreshold {
			evicted = append(evicted, e.objectID)
			delete(r.entries, id)
		}
	}
	return objects, evicted
}

// Len reports live tracks, for diagnostics.
func (r *Registry) Len() int { return len(r.entries) }
