// Package detect defines the detection model shared by the camera agent and
// the dispatch server: object classes, bounding boxes, pose status and the
// Detector interface the inference stage runs against.
package detect

import (
	"context"

	"github.com/technosupport/falcon/internal/codec"
)

// Class tags a detected object. Wire format uses these strings verbatim.
type Class string

const (
	ClassBird        Class = "BIRD"
	ClassFOD         Class = "FOD"
	ClassPerson      Class = "PERSON"
	ClassAnimal      Class = "ANIMAL"
	ClassAirplane    Class = "AIRPLANE"
	ClassVehicle     Class = "VEHICLE"
	ClassWorkPerson  Class = "WORK_PERSON"
	ClassWorkVehicle Class = "WORK_VEHICLE"
)

// Pose is the body orientation estimate for person classes.
type Pose string

const (
	PoseStanding Pose = "STANDING"
	PoseFallen   Pose = "FALLEN"
	PoseUnknown  Pose = "UNKNOWN"
)

// Mode selects what the inference stage looks for. Map mode only watches for
// calibration markers; object mode runs full detection.
type Mode string

const (
	ModeMap    Mode = "map"
	ModeObject Mode = "object"
)

// BBox is a pixel-space bounding box, inclusive top-left exclusive
// bottom-right.
type BBox struct {
	X1, Y1, X2, Y2 int
}

func (b BBox) Width() int  { return b.X2 - b.X1 }
func (b BBox) Height() int { return b.Y2 - b.Y1 }
func (b BBox) Area() int   { return b.Width() * b.Height() }

// BottomCenter is the ground-contact point used for map projection.
func (b BBox) BottomCenter() (x, y int) {
	return (b.X1 + b.X2) / 2, b.Y2
}

// Clamp restricts the box to a frame of the given size.
func (b BBox) Clamp(w, h int) BBox {
	if b.X1 < 0 {
		b.X1 = 0
	}
	if b.Y1 < 0 {
		b.Y1 = 0
	}
	if b.X2 > w {
		b.X2 = w
	}
	if b.Y2 > h {
		b.Y2 = h
	}
	return b
}

// Detection is one detected object in one frame. TrackID is the detector's
// short-lived track number; the tracker package converts it into a stable
// object id.
type Detection struct {
	TrackID    int
	Class      Class
	BBox       BBox
	Confidence float64
	Pose       Pose
}

// Detector runs object detection over frames. Implementations keep their own
// tracker state, so TrackID is stable across consecutive calls while the
// object stays in view.
type Detector interface {
	Detect(ctx context.Context, f *codec.Frame, mode Mode) ([]Detection, error)
}

// FilterByArea drops detections whose box covers more than maxFrac of the
// frame. Oversized boxes are almost always detector failures (lens flare,
// whole-frame motion).
func FilterByArea(dets []Detection, frameW, frameH int, maxFrac float64) []Detection {
	limit := float64(frameW*frameH) * maxFrac
	out := dets[:0]
	for _, d := range dets {
		if float64(d.BBox.Area()) <= limit {
			out = append(out, d)
		}
	}
	return out
}
