package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/technosupport/falcon/internal/codec"
)

// Device is a frame source. ReadFrame blocks until the next frame is
// available; the device paces the capture loop.
type Device interface {
	ReadFrame(ctx context.Context) (*codec.Frame, error)
	Close() error
}

// SyntheticDevice renders a bright target drifting over a flat apron at a
// fixed rate. It stands in for camera hardware on bench deployments and in
// tests.
type SyntheticDevice struct {
	cameraID string
	width    int
	height   int
	interval time.Duration
	tick     int
}

func NewSyntheticDevice(cameraID string, width, height, fps int) *SyntheticDevice {
	if fps < 1 {
		fps = 15
	}
	return &SyntheticDevice{
		cameraID: cameraID,
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(fps),
	}
}

func (d *SyntheticDevice) ReadFrame(ctx context.Context) (*codec.Frame, error) {
	t := time.NewTimer(d.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	bg := color.RGBA{R: 96, G: 96, B: 96, A: 255}
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			img.SetRGBA(x, y, bg)
		}
	}

	// The target crosses the frame and wraps.
	bw, bh := d.width/16, d.height/4
	x0 := (d.tick * 4) % (d.width - bw)
	y0 := d.height / 2
	for y := y0; y < y0+bh && y < d.height; y++ {
		for x := x0; x < x0+bw; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 245, G: 245, B: 245, A: 255})
		}
	}
	d.tick++

	return codec.NewFrame(d.cameraID, img, time.Now()), nil
}

func (d *SyntheticDevice) Close() error { return nil }

// OpenDevice resolves a config device string. "synthetic" (or empty) yields
// the built-in source; anything else is unsupported until a capture backend
// ships for the platform.
func OpenDevice(cameraID, device string, width, height, fps int) (Device, error) {
	switch device {
	case "", "synthetic":
		return NewSyntheticDevice(cameraID, width, height, fps), nil
	default:
		return nil, fmt.Errorf("unsupported capture device %q", device)
	}
}
