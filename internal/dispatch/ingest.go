package dispatch

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/falcon/internal/codec"
	"github.com/technosupport/falcon/internal/data"
	"github.com/technosupport/falcon/internal/detect"
	"github.com/technosupport/falcon/internal/metrics"
	"github.com/technosupport/falcon/internal/transport"
)

// EventRepo is the slice of the repository the ingest path needs; satisfied
// by data.EventModel.
type EventRepo interface {
	Save(ctx context.Context, e *data.Event, jpegCrop []byte) error
}

// EventPublisher is the bus surface the ingest path needs; satisfied by *Bus.
type EventPublisher interface {
	Publish(ev BusEvent) error
}

const firstObservationCropQuality = 90

// IngestHub terminates the detection-ingest endpoint: it orders batches per
// camera, joins them with buffered frames, runs the first-observation gate
// and fans accepted broadcasts onto the bus.
type IngestHub struct {
	Buffer *FrameBuffer
	Gate   *Gate
	Mapper *Mapper
	Repo   EventRepo
	Bus    EventPublisher
	Runway *RunwayRule

	mu        sync.Mutex
	lastFrame map[string]int64
}

func NewIngestHub(buffer *FrameBuffer, gate *Gate, mapper *Mapper, repo EventRepo, bus EventPublisher, runway *RunwayRule) *IngestHub {
	return &IngestHub{
		Buffer:    buffer,
		Gate:      gate,
		Mapper:    mapper,
		Repo:      repo,
		Bus:       bus,
		Runway:    runway,
		lastFrame: make(map[string]int64),
	}
}

func (h *IngestHub) OnConnect(c *transport.Conn) {
	metrics.AgentsConnected.Inc()
	// New agents start in map mode; switch them to detection immediately.
	c.SendMessage(transport.Message{Type: transport.TypeCommand, Command: transport.CmdSetModeObject})
}

func (h *IngestHub) OnDisconnect(*transport.Conn) {
	metrics.AgentsConnected.Dec()
}

func (h *IngestHub) OnLine(c *transport.Conn, line []byte) {
	msg, err := transport.DecodeLine(line)
	if err != nil {
		log.Printf("[ERROR] Ingest: %v", err)
		return
	}

	switch msg.Type {
	case transport.TypeResponse:
		log.Printf("[INFO] Ingest: %s acknowledged %s (%s)", msg.CameraID, msg.Command, msg.Result)
	case transport.TypeHeartbeat:
	case transport.TypeEvent:
		h.handleEvent(c, msg)
	default:
		log.Printf("[ERROR] Ingest: unexpected message type %q", msg.Type)
	}
}

func (h *IngestHub) handleEvent(c *transport.Conn, msg transport.Message) {
	switch msg.Event {
	case transport.EventObjectDetected:
		h.handleBatch(msg)
	case transport.EventMapCalibration:
		log.Printf("[INFO] Ingest: map calibration from %s (scale %.3f)", msg.CameraID, msg.Scale)
		c.SendMessage(transport.Message{Type: transport.TypeCommand, Command: transport.CmdSetModeObject})
	case transport.EventDetectorDegraded:
		log.Printf("[ERROR] Ingest: detector degraded on %s", msg.CameraID)
		h.publish(BusEvent{Kind: "DETECTOR_DEGRADED", Line: "ME_DG:" + msg.CameraID})
	default:
		log.Printf("[ERROR] Ingest: unknown event %q from %s", msg.Event, msg.CameraID)
	}
}

func (h *IngestHub) handleBatch(msg transport.Message) {
	if len(msg.Detections) == 0 {
		return
	}
	cam := msg.CameraID
	frameID := msg.Detections[0].ImgID

	h.mu.Lock()
	if frameID < h.lastFrame[cam] {
		h.mu.Unlock()
		log.Printf("[ERROR] Ingest: out-of-order batch from %s (frame %d), discarded", cam, frameID)
		return
	}
	h.lastFrame[cam] = frameID
	h.mu.Unlock()

	h.Buffer.Attach(cam, frameID, msg.Detections)

	frame := h.Buffer.Get(cam, frameID)
	frameW, frameH := MapWidth, MapHeight
	if frame != nil {
		frameW, frameH = frame.Width(), frame.Height()
	}

	at := parseEventTime(msg.Time)
	records := make([]string, 0, len(msg.Detections))
	for _, det := range msg.Detections {
		bbox := detect.BBox{X1: det.BBox[0], Y1: det.BBox[1], X2: det.BBox[2], Y2: det.BBox[3]}
		mapX, mapY, area, inArea := h.Mapper.Project(bbox, frameW, frameH)

		if h.Runway != nil && inArea {
			h.Runway.Observe(area.Name, det.Confidence, at)
		}

		records = append(records, formatRecord(det, mapX, mapY, area.Name, at))

		if h.Gate.Seen(det.ObjectID, at) {
			continue
		}
		h.persistFirst(cam, frame, det, bbox, mapX, mapY, area, at)
	}

	h.publish(BusEvent{Kind: "OBJECT_DETECTED", Line: "ME_OD:" + strings.Join(records, ";")})
}

// persistFirst runs the gate admission path: crop, save, admit, announce.
// A failed save leaves the gate untouched so the next sighting retries.
func (h *IngestHub) persistFirst(cam string, frame *codec.Frame, det transport.WireDetection, bbox detect.BBox, mapX, mapY int, area data.Area, at time.Time) {
	var crop []byte
	if frame != nil {
		if img := frame.Crop(bbox.X1, bbox.Y1, bbox.X2, bbox.Y2); img != nil {
			if encoded, err := codec.EncodeJPEG(img, firstObservationCropQuality); err == nil {
				crop = encoded
			} else {
				log.Printf("[ERROR] Ingest: crop %s: %v", det.ObjectID, err)
			}
		}
	}

	ev := &data.Event{
		Kind:       data.KindForClass(det.Class),
		ObjectID:   det.ObjectID,
		Class:      det.Class,
		MapX:       mapX,
		MapY:       mapY,
		AreaID:     area.ID,
		OccurredAt: at,
	}
	if err := h.Repo.Save(context.Background(), ev, crop); err != nil {
		log.Printf("[ERROR] Ingest: save first observation %s: %v", det.ObjectID, err)
		return
	}

	h.Gate.Admit(det.ObjectID, at)
	metrics.RecordEventPersisted()
	log.Printf("[INFO] Ingest: first observation %s (%s) on %s", det.ObjectID, det.Class, cam)

	h.publish(BusEvent{
		Kind: "FIRST_DETECTED",
		Line: "ME_FD:" + formatRecordParts(det.ObjectID, det.Class, mapX, mapY, area.Name, at, det.RescueLevel),
		Crop: crop,
	})
}

func (h *IngestHub) publish(ev BusEvent) {
	if err := h.Bus.Publish(ev); err != nil {
		log.Printf("[ERROR] Ingest: %v", err)
	}
}

func formatRecord(det transport.WireDetection, mapX, mapY int, area string, at time.Time) string {
	return formatRecordParts(det.ObjectID, det.Class, mapX, mapY, area, at, det.RescueLevel)
}

func formatRecordParts(objectID, class string, mapX, mapY int, area string, at time.Time, rescue string) string {
	if area == "" {
		area = "-"
	}
	s := objectID + "," + class + "," + strconv.Itoa(mapX) + "," + strconv.Itoa(mapY) +
		"," + area + "," + at.UTC().Format(time.RFC3339)
	if rescue != "" && rescue != "0" {
		s += "," + rescue
	}
	return s
}

func parseEventTime(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Now()
}
