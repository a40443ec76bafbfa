package detect

import (
	"context"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/technosupport/falcon/internal/codec"
)

// ClassMarker tags a calibration marker found in map mode. It is consumed by
// the calibration flow and never reported as a detected object.
const ClassMarker Class = "MARKER"

const (
	cellSize      = 16
	bgAlpha       = 0.05
	fgThreshold   = 28.0
	minCellsPerFG = 2
	iouAssocMin   = 0.3
)

// HeuristicDetector is the CGO-free fallback detector: a grid background
// model with luminance differencing, connected-component grouping and
// IoU-based track association. When a model file is present in modelDir it
// logs so; ONNX inference needs CGO and is wired in separately on deployments
// that ship the runtime.
type HeuristicDetector struct {
	mu sync.Mutex

	bg     []float64 // per-cell running luminance, row-major
	cols   int
	rows   int
	warmed int

	prev   []Detection
	nextID int
}

func NewHeuristicDetector(modelDir string) *HeuristicDetector {
	if modelDir != "" {
		found := false
		for _, name := range []string{"falcon_yolo.onnx", "yolov8n.onnx", "model.onnx"} {
			if _, err := os.Stat(filepath.Join(modelDir, name)); err == nil {
				log.Printf("[INFO] Detector: found model %s; ONNX inference requires the CGO runtime, using heuristic detection", name)
				found = true
				break
			}
		}
		if !found {
			log.Printf("[INFO] Detector: no model in %s, using heuristic detection", modelDir)
		}
	}
	return &HeuristicDetector{nextID: 1}
}

func (d *HeuristicDetector) Detect(ctx context.Context, f *codec.Frame, mode Mode) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lum, cols, rows := cellLuminance(f.Img)
	if d.bg == nil || cols != d.cols || rows != d.rows {
		d.bg = append([]float64(nil), lum...)
		d.cols, d.rows = cols, rows
		d.warmed = 0
	}

	fg := make([]bool, len(lum))
	for i, v := range lum {
		if d.warmed > 0 && absf(v-d.bg[i]) > fgThreshold {
			fg[i] = true
		}
		d.bg[i] += bgAlpha * (v - d.bg[i])
	}
	d.warmed++

	if mode == ModeMap {
		return d.findMarkers(lum), nil
	}

	boxes := groupForeground(fg, cols, rows, f.Width(), f.Height())
	dets := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		c := classify(b, f.Width(), f.Height())
		det := Detection{Class: c, BBox: b, Confidence: 0.6}
		if c == ClassPerson {
			det.Pose = PoseFromBBox(b)
		}
		dets = append(dets, det)
	}
	d.associate(dets)
	d.prev = dets
	return dets, nil
}

// associate reuses track ids from the previous frame by best IoU overlap.
func (d *HeuristicDetector) associate(dets []Detection) {
	used := make(map[int]bool, len(d.prev))
	for i := range dets {
		best, bestIoU := -1, iouAssocMin
		for j, p := range d.prev {
			if used[j] || p.Class != dets[i].Class {
				continue
			}
			if v := iou(dets[i].BBox, p.BBox); v > bestIoU {
				best, bestIoU = j, v
			}
		}
		if best >= 0 {
			dets[i].TrackID = d.prev[best].TrackID
			used[best] = true
		} else {
			dets[i].TrackID = d.nextID
			d.nextID++
		}
	}
}

// findMarkers looks for the calibration pattern: a near-black cell ringed by
// bright cells, the printed marker on apron concrete.
func (d *HeuristicDetector) findMarkers(lum []float64) []Detection {
	var out []Detection
	for r := 1; r < d.rows-1; r++ {
		for c := 1; c < d.cols-1; c++ {
			center := lum[r*d.cols+c]
			if center > 50 {
				continue
			}
			bright := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					if lum[(r+dr)*d.cols+(c+dc)] > 180 {
						bright++
					}
				}
			}
			if bright >= 6 {
				out = append(out, Detection{
					Class:      ClassMarker,
					BBox:       BBox{X1: (c - 1) * cellSize, Y1: (r - 1) * cellSize, X2: (c + 2) * cellSize, Y2: (r + 2) * cellSize},
					Confidence: 0.9,
				})
			}
		}
	}
	return out
}

func cellLuminance(img *image.RGBA) ([]float64, int, int) {
	b := img.Bounds()
	cols := (b.Dx() + cellSize - 1) / cellSize
	rows := (b.Dy() + cellSize - 1) / cellSize
	out := make([]float64, cols*rows)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0 := b.Min.X + c*cellSize
			y0 := b.Min.Y + r*cellSize
			x1 := minInt(x0+cellSize, b.Max.X)
			y1 := minInt(y0+cellSize, b.Max.Y)
			var sum, n float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					px := img.RGBAAt(x, y)
					sum += 0.299*float64(px.R) + 0.587*float64(px.G) + 0.114*float64(px.B)
					n++
				}
			}
			if n > 0 {
				out[r*cols+c] = sum / n
			}
		}
	}
	return out, cols, rows
}

// groupForeground merges 4-connected foreground cells into pixel boxes.
func groupForeground(fg []bool, cols, rows, frameW, frameH int) []BBox {
	seen := make([]bool, len(fg))
	var boxes []BBox

	for i := range fg {
		if !fg[i] || seen[i] {
			continue
		}
		minC, minR := cols, rows
		maxC, maxR := -1, -1
		cells := 0
		stack := []int{i}
		seen[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cells++
			r, c := cur/cols, cur%cols
			if c < minC {
				minC = c
			}
			if c > maxC {
				maxC = c
			}
			if r < minR {
				minR = r
			}
			if r > maxR {
				maxR = r
			}
			for _, nb := range [4][2]int{{r - 1, c}, {r + 1, c}, {r, c - 1}, {r, c + 1}} {
				nr, nc := nb[0], nb[1]
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				j := nr*cols + nc
				if fg[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		if cells < minCellsPerFG {
			continue
		}
		boxes = append(boxes, BBox{
			X1: minC * cellSize,
			Y1: minR * cellSize,
			X2: minInt((maxC+1)*cellSize, frameW),
			Y2: minInt((maxR+1)*cellSize, frameH),
		})
	}
	return boxes
}

// classify maps box geometry to the most plausible class. A learned model
// replaces this on deployments with the ONNX runtime.
func classify(b BBox, frameW, frameH int) Class {
	w, h := b.Width(), b.Height()
	frac := float64(b.Area()) / float64(frameW*frameH)
	aspect := float64(h) / float64(w)

	switch {
	case frac > 0.25:
		return ClassAirplane
	case frac < 0.005:
		if b.Y2 < frameH/2 {
			return ClassBird
		}
		return ClassFOD
	case aspect >= 1.2:
		return ClassPerson
	case aspect < 0.7 && frac > 0.03:
		return ClassVehicle
	default:
		return ClassAnimal
	}
}

func iou(a, b BBox) float64 {
	ix1 := maxInt(a.X1, b.X1)
	iy1 := maxInt(a.Y1, b.Y1)
	ix2 := minInt(a.X2, b.X2)
	iy2 := minInt(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - inter
	return float64(inter) / float64(union)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
