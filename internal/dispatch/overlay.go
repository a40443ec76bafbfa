package dispatch

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/technosupport/falcon/internal/codec"
	"github.com/technosupport/falcon/internal/transport"
)

var classColors = map[string]color.RGBA{
	"BIRD":         {R: 66, G: 135, B: 245, A: 255},
	"FOD":          {R: 255, G: 165, B: 0, A: 255},
	"PERSON":       {R: 255, G: 0, B: 0, A: 255},
	"ANIMAL":       {R: 160, G: 32, B: 240, A: 255},
	"AIRPLANE":     {R: 0, G: 200, B: 200, A: 255},
	"VEHICLE":      {R: 255, G: 255, B: 0, A: 255},
	"WORK_PERSON":  {R: 0, G: 200, B: 0, A: 255},
	"WORK_VEHICLE": {R: 0, G: 128, B: 0, A: 255},
}

var defaultBoxColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}

// Annotate draws detection boxes and labels on a copy of the frame. The
// input frame is never mutated.
func Annotate(f *codec.Frame, dets []transport.WireDetection) *codec.Frame {
	out := f.Clone()
	if len(dets) == 0 {
		return out
	}

	for _, d := range dets {
		col, ok := classColors[d.Class]
		if !ok {
			col = defaultBoxColor
		}
		drawBox(out.Img, d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3], col)
		label := fmt.Sprintf("%s: %.2f", d.Class, d.Confidence)
		drawLabel(out.Img, d.BBox[0], d.BBox[1], label, col)
	}
	return out
}

func drawBox(img *image.RGBA, x1, y1, x2, y2 int, col color.RGBA) {
	const thickness = 2
	b := img.Bounds()
	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			setIfIn(img, b, x, y1+t, col)
			setIfIn(img, b, x, y2-t, col)
		}
		for y := y1; y <= y2; y++ {
			setIfIn(img, b, x1+t, y, col)
			setIfIn(img, b, x2-t, y, col)
		}
	}
}

func setIfIn(img *image.RGBA, b image.Rectangle, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(b) {
		img.SetRGBA(x, y, col)
	}
}

// drawLabel renders the text on a filled background above the box, clamped
// into the frame.
func drawLabel(img *image.RGBA, x, y int, label string, col color.RGBA) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil() + 4
	h := face.Metrics().Height.Ceil() + 2

	top := y - h
	if top < img.Bounds().Min.Y {
		top = y
	}
	bg := image.Rect(x, top, x+w, top+h).Intersect(img.Bounds())
	draw.Draw(img, bg, &image.Uniform{C: col}, image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{A: 255}),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x + 2),
			Y: fixed.I(top + face.Metrics().Ascent.Ceil()),
		},
	}
	d.DrawString(label)
}
