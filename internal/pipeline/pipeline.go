// Package pipeline runs the per-camera loop: capture, inference and
// transport as three goroutines joined by bounded queues. Capture never
// stalls on a slow stage; overflow drops the oldest frame.
package pipeline

import (
	"context"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/technosupport/falcon/internal/codec"
	"github.com/technosupport/falcon/internal/config"
	"github.com/technosupport/falcon/internal/detect"
	"github.com/technosupport/falcon/internal/metrics"
	"github.com/technosupport/falcon/internal/queue"
	"github.com/technosupport/falcon/internal/rescue"
	"github.com/technosupport/falcon/internal/track"
	"github.com/technosupport/falcon/internal/transport"
)

const (
	capToInfDepth  = 5
	infToSendDepth = 2
	deviceBackoff  = 100 * time.Millisecond
)

// EventSender ships line-JSON messages to the dispatch server.
type EventSender interface {
	Send(transport.Message) error
}

// VideoStreamer ships raw frames to the server's UDP sink.
type VideoStreamer interface {
	SendFrame(*codec.Frame) error
}

// Pipeline wires one camera's stages together.
type Pipeline struct {
	cfg      *config.Agent
	device   Device
	detector detect.Detector
	refiner  *detect.Refiner
	registry *track.Registry
	rescue   *rescue.Estimator
	events   EventSender
	video    VideoStreamer

	capToInf  *queue.Bounded[*codec.Frame]
	infToSend *queue.Bounded[transport.Message]

	mode       atomic.Value // detect.Mode
	hsvPending atomic.Pointer[config.HSV]
	calibrated atomic.Bool
}

func New(cfg *config.Agent, device Device, detector detect.Detector, hsv config.HSV, events EventSender, video VideoStreamer) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		device:    device,
		detector:  detector,
		refiner:   detect.NewRefiner(hsv),
		registry:  track.NewRegistry(cfg.Detect.LostThreshold),
		rescue:    rescue.NewEstimator(cfg.Rescue.MaxLevel),
		events:    events,
		video:     video,
		capToInf:  queue.NewBounded[*codec.Frame](capToInfDepth, queue.DropOldest),
		infToSend: queue.NewBounded[transport.Message](infToSendDepth, queue.DropOldest),
	}
	// Map mode until the server says otherwise.
	p.mode.Store(detect.ModeMap)
	return p
}

// UpdateHSV hands new color windows to the inference stage. Safe from any
// goroutine; applied before the next frame.
func (p *Pipeline) UpdateHSV(h config.HSV) {
	p.hsvPending.Store(&h)
}

// Mode reports the current detection mode.
func (p *Pipeline) Mode() detect.Mode {
	return p.mode.Load().(detect.Mode)
}

// Run drives the stages and the command loop until ctx is done. incoming
// carries commands from the server connection.
func (p *Pipeline) Run(ctx context.Context, incoming <-chan transport.Message) {
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); p.captureLoop(ctx) }()
	go func() { defer wg.Done(); p.inferenceLoop(ctx) }()
	go func() { defer wg.Done(); p.transportLoop() }()
	go func() { defer wg.Done(); p.commandLoop(ctx, incoming) }()
	wg.Wait()
}

func (p *Pipeline) captureLoop(ctx context.Context) {
	defer p.capToInf.Close()
	cam := p.cfg.Camera.ID
	var lastDrop uint64

	for ctx.Err() == nil {
		frame, err := p.device.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ERROR] Capture: device read: %v", err)
			if !sleepCtx(ctx, deviceBackoff) {
				return
			}
			continue
		}
		metrics.RecordCapture(cam)

		// Video streaming is independent of mode and of inference load.
		if err := p.video.SendFrame(frame); err != nil {
			log.Printf("[ERROR] Capture: video send: %v", err)
		}

		_ = p.capToInf.Put(frame)
		if d := p.capToInf.Dropped(); d != lastDrop {
			metrics.RecordDrop(cam, "inference", d-lastDrop)
			lastDrop = d
		}
	}
}

func (p *Pipeline) inferenceLoop(ctx context.Context) {
	defer p.infToSend.Close()
	cam := p.cfg.Camera.ID
	consecutiveFailures := 0

	for {
		frame, ok := p.capToInf.Get()
		if !ok {
			return
		}

		if h := p.hsvPending.Swap(nil); h != nil {
			p.refiner.SetWindows(*h)
		}

		mode := p.Mode()
		start := time.Now()
		dets, err := p.detector.Detect(ctx, frame, mode)
		if err != nil {
			// One retry on the same frame, then the frame is dropped.
			dets, err = p.detector.Detect(ctx, frame, mode)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ERROR] Inference: frame %d: %v", frame.ID, err)
			consecutiveFailures++
			if consecutiveFailures >= 2 && mode == detect.ModeObject {
				p.degrade()
			}
			continue
		}
		consecutiveFailures = 0
		metrics.RecordInferenceLatency(cam, float64(time.Since(start).Milliseconds()))

		if mode == detect.ModeMap {
			p.handleMapMode(frame, dets)
			continue
		}
		p.handleObjectMode(frame, dets)
	}
}

// degrade drops back to map mode after repeated detector failures and tells
// the server so the operator sees it.
func (p *Pipeline) degrade() {
	log.Printf("[ERROR] Inference: repeated detector failures, reverting to map mode")
	p.mode.Store(detect.ModeMap)
	p.calibrated.Store(false)
	msg := transport.NewEvent(transport.EventDetectorDegraded, p.cfg.Camera.ID, time.Now())
	if err := p.events.Send(msg); err != nil {
		log.Printf("[ERROR] Inference: degrade notice: %v", err)
	}
}

func (p *Pipeline) handleMapMode(frame *codec.Frame, dets []detect.Detection) {
	if p.calibrated.Load() {
		return
	}
	markers := 0
	for _, d := range dets {
		if d.Class == detect.ClassMarker {
			markers++
		}
	}
	if markers == 0 {
		return
	}

	// Markers confirm the ground plane; the projection is the frame-to-map
	// scale until a full homography solver lands.
	sx := 960.0 / float64(frame.Width())
	sy := 720.0 / float64(frame.Height())
	msg := transport.NewEvent(transport.EventMapCalibration, p.cfg.Camera.ID, frame.CapturedAt)
	msg.Matrix = [][]float64{{sx, 0, 0}, {0, sy, 0}, {0, 0, 1}}
	msg.Scale = sx
	if err := p.events.Send(msg); err != nil {
		log.Printf("[ERROR] Inference: calibration send: %v", err)
		return
	}
	p.calibrated.Store(true)
	log.Printf("[INFO] Inference: map calibration sent (%d markers)", markers)
}

func (p *Pipeline) handleObjectMode(frame *codec.Frame, dets []detect.Detection) {
	cam := p.cfg.Camera.ID

	dets = detect.FilterByArea(dets, frame.Width(), frame.Height(), p.cfg.Detect.MaxArea)
	p.refiner.Refine(frame.Img, dets)

	objects, evicted := p.registry.Resolve(dets, frame.CapturedAt)
	p.rescue.Forget(evicted...)

	if len(objects) == 0 {
		return
	}

	msg := transport.NewEvent(transport.EventObjectDetected, cam, frame.CapturedAt)
	msg.Detections = make([]transport.WireDetection, 0, len(objects))
	for _, obj := range objects {
		metrics.RecordDetection(string(obj.Class))
		level := 0
		if obj.Class == detect.ClassPerson || obj.Class == detect.ClassWorkPerson {
			level = p.rescue.Update(obj.ID, obj.Pose, frame.CapturedAt)
		}
		msg.Detections = append(msg.Detections, transport.WireDetection{
			ObjectID:    obj.ID,
			Class:       string(obj.Class),
			BBox:        [4]int{obj.BBox.X1, obj.BBox.Y1, obj.BBox.X2, obj.BBox.Y2},
			Confidence:  obj.Confidence,
			ImgID:       frame.ID,
			RescueLevel: strconv.Itoa(level),
		})
	}

	var lastDrop = p.infToSend.Dropped()
	_ = p.infToSend.Put(msg)
	if d := p.infToSend.Dropped(); d != lastDrop {
		metrics.RecordDrop(cam, "transport", d-lastDrop)
	}
}

func (p *Pipeline) transportLoop() {
	for {
		msg, ok := p.infToSend.Get()
		if !ok {
			return
		}
		if err := p.events.Send(msg); err != nil {
			// The client reconnects on its own; live batches are not replayed.
			log.Printf("[ERROR] Transport: send: %v", err)
		}
	}
}

func (p *Pipeline) commandLoop(ctx context.Context, incoming <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			if msg.Type != transport.TypeCommand {
				continue
			}
			p.handleCommand(msg)
		}
	}
}

func (p *Pipeline) handleCommand(msg transport.Message) {
	resp := transport.Message{
		Type:     transport.TypeResponse,
		Command:  msg.Command,
		CameraID: p.cfg.Camera.ID,
		Result:   transport.ResultOK,
	}

	switch msg.Command {
	case transport.CmdSetModeObject:
		p.mode.Store(detect.ModeObject)
		log.Printf("[INFO] Pipeline: mode set to object")
	case transport.CmdSetModeMap:
		p.mode.Store(detect.ModeMap)
		p.calibrated.Store(false)
		log.Printf("[INFO] Pipeline: mode set to map")
	default:
		log.Printf("[ERROR] Pipeline: unknown command %q", msg.Command)
		resp.Result = transport.ResultError
	}

	if err := p.events.Send(resp); err != nil {
		log.Printf("[ERROR] Pipeline: command response: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
