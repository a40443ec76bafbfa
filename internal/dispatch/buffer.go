package dispatch

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/falcon/internal/codec"
	"github.com/technosupport/falcon/internal/transport"
)

// FrameBuffer keeps the most recent frames per camera and joins them with
// detection batches that arrive on a separate path. Detections may land
// before or after their frame; attachments for frames already evicted are
// kept so they can still be rendered on the closest earlier frame.
type FrameBuffer struct {
	mu       sync.Mutex
	capacity int
	cams     map[string]*cameraBuf
}

type cameraBuf struct {
	ids    []int64 // ascending insertion order of live frames
	frames map[int64]*codec.Frame
	dets   *lru.Cache[int64, []transport.WireDetection]
}

const detCacheSize = 64

func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < 1 {
		capacity = 30
	}
	return &FrameBuffer{
		capacity: capacity,
		cams:     make(map[string]*cameraBuf),
	}
}

func (b *FrameBuffer) cam(cameraID string) *cameraBuf {
	c, ok := b.cams[cameraID]
	if !ok {
		dets, _ := lru.New[int64, []transport.WireDetection](detCacheSize)
		c = &cameraBuf{frames: make(map[int64]*codec.Frame), dets: dets}
		b.cams[cameraID] = c
	}
	return c
}

// Put inserts a frame, evicting the oldest past capacity. Frames older than
// the newest already buffered are ignored.
func (b *FrameBuffer) Put(cameraID string, f *codec.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.cam(cameraID)
	if n := len(c.ids); n > 0 && f.ID <= c.ids[n-1] {
		return
	}
	c.ids = append(c.ids, f.ID)
	c.frames[f.ID] = f
	for len(c.ids) > b.capacity {
		delete(c.frames, c.ids[0])
		c.ids = c.ids[1:]
	}
}

// Get returns the buffered frame or nil on a miss.
func (b *FrameBuffer) Get(cameraID string, frameID int64) *codec.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cams[cameraID]
	if !ok {
		return nil
	}
	return c.frames[frameID]
}

// Attach records a detection batch for a frame id, whether or not the frame
// is still buffered.
func (b *FrameBuffer) Attach(cameraID string, frameID int64, dets []transport.WireDetection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cam(cameraID).dets.Add(frameID, dets)
}

// Render resolves the overlay set for a frame: its own detections when
// attached, otherwise the most recent batch attached to an earlier frame
// within maxGap buffered frames. Beyond the gap the frame renders bare.
func (b *FrameBuffer) Render(cameraID string, frameID int64, maxGap int) (*codec.Frame, []transport.WireDetection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.cams[cameraID]
	if !ok {
		return nil, nil
	}
	f := c.frames[frameID]
	if f == nil {
		return nil, nil
	}
	if dets, ok := c.dets.Get(frameID); ok {
		return f, dets
	}

	// Closest earlier attachment, counting buffered frames as the gap.
	var bestID int64 = -1
	for _, id := range c.dets.Keys() {
		if id <= frameID && id > bestID {
			bestID = id
		}
	}
	if bestID < 0 {
		return f, nil
	}
	gap := 0
	for _, id := range c.ids {
		if id > bestID && id <= frameID {
			gap++
		}
	}
	if gap > maxGap {
		return f, nil
	}
	dets, _ := c.dets.Get(bestID)
	return f, dets
}
