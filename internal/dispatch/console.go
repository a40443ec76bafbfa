package dispatch

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/technosupport/falcon/internal/data"
	"github.com/technosupport/falcon/internal/metrics"
	"github.com/technosupport/falcon/internal/transport"
)

// ObjectLookup resolves object details for MC_OD requests; satisfied by
// data.EventModel.
type ObjectLookup interface {
	GetByObjectID(ctx context.Context, objectID string) (*data.Event, error)
}

// ConsoleHub terminates the operator console endpoint. The console speaks
// the colon protocol: MC_* commands in, MR_* responses and ME_* broadcasts
// out. The link is level-triggered: every new console immediately receives
// the current risk state.
type ConsoleHub struct {
	machine *RiskMachine
	lookup  ObjectLookup

	mu       sync.Mutex
	conns    map[*transport.Conn]string // conn -> session id
	selected string                     // camera id feeding the video sink; "" = map view
	server   *transport.LineServer
}

func NewConsoleHub(machine *RiskMachine, lookup ObjectLookup) *ConsoleHub {
	return &ConsoleHub{
		machine: machine,
		lookup:  lookup,
		conns:   make(map[*transport.Conn]string),
	}
}

// SetServer hands the hub its line server for broadcasts. Called once during
// wiring, before Serve.
func (h *ConsoleHub) SetServer(s *transport.LineServer) { h.server = s }

// Selected reports the camera the operator is watching; empty means the map
// view and no video relay.
func (h *ConsoleHub) Selected() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selected
}

func (h *ConsoleHub) OnConnect(c *transport.Conn) {
	session := uuid.New().String()
	h.mu.Lock()
	h.conns[c] = session
	h.mu.Unlock()
	log.Printf("[INFO] Console: session %s from %s", session, c.RemoteAddr())

	// Fresh consoles get the full risk picture before any deltas.
	state := h.machine.Snapshot()
	c.SendLine("ME_BR:" + state.Bird.ConsoleCode())
	c.SendLine("ME_RA:" + state.RunwayA.ConsoleCode())
	c.SendLine("ME_RB:" + state.RunwayB.ConsoleCode())
}

func (h *ConsoleHub) OnDisconnect(c *transport.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *ConsoleHub) OnLine(c *transport.Conn, line []byte) {
	cmd := string(line)
	arg := ""
	if i := strings.IndexByte(cmd, ':'); i >= 0 {
		cmd, arg = cmd[:i], cmd[i+1:]
	}

	switch cmd {
	case "MC_CA":
		h.setSelected("A")
		c.SendLine("MR_CA:OK")
	case "MC_CB":
		h.setSelected("B")
		c.SendLine("MR_CB:OK")
	case "MC_MP":
		h.setSelected("")
		c.SendLine("MR_MP:OK")
	case "MC_OD":
		h.sendDetail(c, arg)
	case "MC_RA":
		h.setRunway(c, "A", arg)
	case "MC_RB":
		h.setRunway(c, "B", arg)
	default:
		log.Printf("[ERROR] Console: unknown command %q", string(line))
	}
}

func (h *ConsoleHub) setSelected(camera string) {
	h.mu.Lock()
	h.selected = camera
	h.mu.Unlock()
	if camera == "" {
		log.Printf("[INFO] Console: map view selected")
	} else {
		log.Printf("[INFO] Console: camera %s selected", camera)
	}
}

// setRunway handles the administrative override: MC_RA/MC_RB with body 0
// (clear) or 1 (warning). The change broadcasts back through the risk
// machine like any other accepted transition.
func (h *ConsoleHub) setRunway(c *transport.Conn, runway, arg string) {
	var status RunwayStatus
	switch arg {
	case "0":
		status = RunwayClear
	case "1":
		status = RunwayWarning
	default:
		log.Printf("[ERROR] Console: invalid runway override %q", arg)
		c.SendLine("MR_R" + runway + ":ERR")
		return
	}
	h.machine.ProposeRunway(runway, status)
	c.SendLine("MR_R" + runway + ":OK")
}

// sendDetail answers MC_OD:<object-id> with the stored event and its crop.
func (h *ConsoleHub) sendDetail(c *transport.Conn, objectID string) {
	ev, err := h.lookup.GetByObjectID(context.Background(), objectID)
	if err != nil {
		if !errors.Is(err, data.ErrRecordNotFound) {
			log.Printf("[ERROR] Console: detail %s: %v", objectID, err)
		}
		c.SendLine("MR_OD:ERR")
		return
	}

	header := "MR_OD:OK," + formatRecordParts(ev.ObjectID, ev.Class, ev.MapX, ev.MapY,
		areaNameByID(ev.AreaID), ev.OccurredAt, "")

	crop, err := os.ReadFile(ev.ImgPath)
	if err != nil {
		log.Printf("[ERROR] Console: detail crop %s: %v", objectID, err)
		c.SendLine(header)
		return
	}
	c.SendRaw(buildCropPayload(header, crop))
}

// HandleBus fans a dispatch event out to every connected console.
func (h *ConsoleHub) HandleBus(ev BusEvent) {
	if h.server == nil {
		return
	}
	metrics.RecordBroadcast("console")
	if len(ev.Crop) > 0 {
		h.server.Broadcast(buildCropPayload(ev.Line, ev.Crop))
		return
	}
	h.server.BroadcastLine(ev.Line)
}

// buildCropPayload frames a text header and JPEG bytes: header, '$',
// image, newline.
func buildCropPayload(header string, crop []byte) []byte {
	out := make([]byte, 0, len(header)+1+len(crop)+1)
	out = append(out, header...)
	out = append(out, '$')
	out = append(out, crop...)
	return append(out, '\n')
}

func areaNameByID(id int) string {
	for _, a := range data.DefaultAreas() {
		if a.ID == id {
			return a.Name
		}
	}
	return ""
}
