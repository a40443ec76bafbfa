package detect

import (
	"image"
	"math"

	"github.com/technosupport/falcon/internal/config"
)

// rgbToHSV converts 8-bit RGB to hue degrees [0,360), saturation and value
// fractions [0,1].
func rgbToHSV(r, g, b uint8) (h, s, v float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	v = max
	delta := max - min

	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// coverage returns the fraction of pixels in rect matching the predicate.
func coverage(img *image.RGBA, rect image.Rectangle, match func(h, s, v float64) bool) float64 {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return 0
	}
	total := rect.Dx() * rect.Dy()
	hits := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := img.RGBAAt(x, y)
			h, s, v := rgbToHSV(c.R, c.G, c.B)
			if match(h, s, v) {
				hits++
			}
		}
	}
	return float64(hits) / float64(total)
}

// Refiner promotes PERSON and VEHICLE detections into their work-crew
// subclasses by color analysis of the detection crop. Windows are swappable
// at runtime via SetWindows.
type Refiner struct {
	windows config.HSV
}

func NewRefiner(windows config.HSV) *Refiner {
	return &Refiner{windows: windows}
}

// SetWindows replaces the color windows. The caller serializes this against
// Refine; the inference stage owns both.
func (r *Refiner) SetWindows(w config.HSV) {
	r.windows = w
}

// Refine rewrites d.Class in place when the crop colors match a work-crew
// window. Non-person, non-vehicle classes pass through unchanged.
func (r *Refiner) Refine(img *image.RGBA, dets []Detection) {
	for i := range dets {
		switch dets[i].Class {
		case ClassPerson:
			if r.isVested(img, dets[i].BBox) {
				dets[i].Class = ClassWorkPerson
			}
		case ClassVehicle:
			if r.isWorkVehicle(img, dets[i].BBox) {
				dets[i].Class = ClassWorkVehicle
			}
		}
	}
}

// isVested samples the upper 60% of the box, where a safety vest sits on a
// standing person.
func (r *Refiner) isVested(img *image.RGBA, b BBox) bool {
	w := r.windows.Vest
	upper := image.Rect(b.X1, b.Y1, b.X2, b.Y1+int(float64(b.Height())*0.6))
	frac := coverage(img, upper, func(h, s, v float64) bool {
		return h >= w.HueLo && h <= w.HueHi && s >= w.SatMin && v >= w.ValMin
	})
	return frac > w.MinCoverage
}

// isWorkVehicle needs both the yellow body color and the dark tire/trim
// fraction; yellow alone matches painted apron markings.
func (r *Refiner) isWorkVehicle(img *image.RGBA, b BBox) bool {
	rect := image.Rect(b.X1, b.Y1, b.X2, b.Y2)

	yw := r.windows.VehicleYellow
	yellow := coverage(img, rect, func(h, s, v float64) bool {
		return h >= yw.HueLo && h <= yw.HueHi && s >= yw.SatMin && v >= yw.ValMin
	})
	if yellow <= yw.MinCoverage {
		return false
	}

	bw := r.windows.VehicleBlack
	black := coverage(img, rect, func(_, _, v float64) bool {
		return v <= bw.ValMax
	})
	return black > bw.MinCoverage
}
