package dispatch

import (
	"github.com/technosupport/falcon/internal/data"
	"github.com/technosupport/falcon/internal/detect"
)

// Operator map canvas size; the original console renders at this fixed size.
const (
	MapWidth  = 960
	MapHeight = 720
)

// Mapper projects frame-space detections onto the operator map and resolves
// the surface area they stand in. The ground-contact point is the bbox
// bottom-center.
type Mapper struct {
	areas []data.Area
}

func NewMapper(areas []data.Area) *Mapper {
	if len(areas) == 0 {
		areas = data.DefaultAreas()
	}
	return &Mapper{areas: areas}
}

// Project returns map pixel coordinates and the containing area. ok is false
// when the point falls outside every seeded area.
func (m *Mapper) Project(b detect.BBox, frameW, frameH int) (mapX, mapY int, area data.Area, ok bool) {
	if frameW <= 0 || frameH <= 0 {
		return 0, 0, data.Area{}, false
	}
	cx, cy := b.BottomCenter()
	nx := clamp01(float64(cx) / float64(frameW))
	ny := clamp01(float64(cy) / float64(frameH))

	mapX = int(nx * MapWidth)
	mapY = int(ny * MapHeight)

	for _, a := range m.areas {
		if a.Contains(nx, ny) {
			return mapX, mapY, a, true
		}
	}
	return mapX, mapY, data.Area{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
