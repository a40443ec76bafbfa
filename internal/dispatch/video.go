package dispatch

import (
	"log"
	"time"

	"github.com/technosupport/falcon/internal/codec"
	"github.com/technosupport/falcon/internal/transport"
)

// CameraSelector reports which camera the operator is watching; satisfied by
// ConsoleHub.
type CameraSelector interface {
	Selected() string
}

// ConsoleVideo relays agent video to the console sink: incoming frames are
// buffered for crop extraction, and frames from the selected camera are
// annotated with their detections and re-streamed.
type ConsoleVideo struct {
	buffer   *FrameBuffer
	selector CameraSelector
	sender   *transport.VideoSender
	maxGap   int
}

func NewConsoleVideo(buffer *FrameBuffer, selector CameraSelector, sender *transport.VideoSender, maxGap int) *ConsoleVideo {
	return &ConsoleVideo{
		buffer:   buffer,
		selector: selector,
		sender:   sender,
		maxGap:   maxGap,
	}
}

// HandleDatagram is the VideoReceiver callback. It must not retain jpeg.
func (v *ConsoleVideo) HandleDatagram(cameraID string, frameID int64, jpeg []byte) {
	img, err := codec.DecodeJPEG(jpeg)
	if err != nil {
		log.Printf("[ERROR] Video relay: %s frame %d: %v", cameraID, frameID, err)
		return
	}
	f := &codec.Frame{CameraID: cameraID, ID: frameID, Img: img, CapturedAt: time.Now()}
	v.buffer.Put(cameraID, f)

	if v.sender == nil || v.selector.Selected() != cameraID {
		return
	}

	frame, dets := v.buffer.Render(cameraID, frameID, v.maxGap)
	if frame == nil {
		return
	}
	if err := v.sender.SendFrame(Annotate(frame, dets)); err != nil {
		log.Printf("[ERROR] Video relay: %s frame %d: %v", cameraID, frameID, err)
	}
}
