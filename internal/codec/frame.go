package codec

import (
	"image"
	"time"

	"golang.org/x/image/draw"
)

// Frame is one captured camera image. Immutable after capture: stages that
// need to draw on it must work on a Clone.
type Frame struct {
	CameraID   string
	ID         int64 // nanosecond capture timestamp, monotonic per camera
	Img        *image.RGBA
	CapturedAt time.Time
}

func NewFrame(cameraID string, img *image.RGBA, capturedAt time.Time) *Frame {
	return &Frame{
		CameraID:   cameraID,
		ID:         capturedAt.UnixNano(),
		Img:        img,
		CapturedAt: capturedAt,
	}
}

func (f *Frame) Width() int  { return f.Img.Bounds().Dx() }
func (f *Frame) Height() int { return f.Img.Bounds().Dy() }

// Clone returns a deep copy sharing no pixel storage with the original.
func (f *Frame) Clone() *Frame {
	dst := image.NewRGBA(f.Img.Bounds())
	copy(dst.Pix, f.Img.Pix)
	c := *f
	c.Img = dst
	return &c
}

// Resize scales the frame to the given processing resolution. Returns the
// receiver unchanged when it already matches.
func (f *Frame) Resize(width, height int) *Frame {
	if f.Width() == width && f.Height() == height {
		return f
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), f.Img, f.Img.Bounds(), draw.Src, nil)
	c := *f
	c.Img = dst
	return &c
}

// Crop returns the pixels inside the rectangle, clamped to the frame bounds.
// Returns nil when the clamped region is empty.
func (f *Frame) Crop(x1, y1, x2, y2 int) *image.RGBA {
	b := f.Img.Bounds()
	r := image.Rect(x1, y1, x2, y2).Intersect(b)
	if r.Empty() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), f.Img, r.Min, draw.Src)
	return dst
}
