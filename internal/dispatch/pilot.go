package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/technosupport/falcon/internal/transport"
)

// InteractionAppender records pilot query/response pairs; satisfied by
// data.InteractionLogModel.
type InteractionAppender interface {
	Append(ctx context.Context, request, response string, requestedAt, respondedAt time.Time) error
}

// PilotHub answers cockpit status queries. Pilots never receive unsolicited
// traffic; every line out is a reply to a line in, and every exchange is
// written to the interaction log.
type PilotHub struct {
	machine *RiskMachine
	logbook InteractionAppender
}

func NewPilotHub(machine *RiskMachine, logbook InteractionAppender) *PilotHub {
	return &PilotHub{machine: machine, logbook: logbook}
}

func (h *PilotHub) OnConnect(c *transport.Conn) {
	log.Printf("[INFO] Pilot: link up from %s", c.RemoteAddr())
}

func (h *PilotHub) OnDisconnect(*transport.Conn) {}

func (h *PilotHub) OnLine(c *transport.Conn, line []byte) {
	requestedAt := time.Now()

	msg, err := transport.DecodeLine(line)
	if err != nil {
		log.Printf("[ERROR] Pilot: %v", err)
		return
	}
	if msg.Type == transport.TypeHeartbeat {
		return
	}
	if msg.Type != transport.TypeCommand {
		log.Printf("[ERROR] Pilot: unexpected message type %q", msg.Type)
		return
	}

	state := h.machine.Snapshot()
	var answer string
	switch msg.Command {
	case transport.CmdBirdRiskInquiry:
		answer = string(state.Bird)
	case transport.CmdRunwayAStatus:
		answer = string(state.RunwayA)
	case transport.CmdRunwayBStatus:
		answer = string(state.RunwayB)
	case transport.CmdRunwayAvail:
		answer = state.Availability()
	default:
		log.Printf("[ERROR] Pilot: unknown command %q", msg.Command)
		c.SendMessage(transport.Message{Type: transport.TypeResponse, Command: msg.Command, Result: transport.ResultError})
		return
	}

	c.SendMessage(transport.Message{Type: transport.TypeResponse, Command: msg.Command, Result: answer})

	if h.logbook != nil {
		if err := h.logbook.Append(context.Background(), msg.Command, answer, requestedAt, time.Now()); err != nil {
			log.Printf("[ERROR] Pilot: %v", err)
		}
	}
}
