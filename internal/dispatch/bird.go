package dispatch

import (
	"log"

	"github.com/technosupport/falcon/internal/transport"
)

// BirdHub terminates the bird-detection subsystem endpoint. The subsystem
// proposes airfield bird-risk levels as BR_CHANGED events; the risk machine
// decides whether each proposal is an actual transition.
type BirdHub struct {
	machine *RiskMachine
}

func NewBirdHub(machine *RiskMachine) *BirdHub {
	return &BirdHub{machine: machine}
}

func (h *BirdHub) OnConnect(c *transport.Conn) {
	log.Printf("[INFO] Bird: subsystem connected from %s", c.RemoteAddr())
}

func (h *BirdHub) OnDisconnect(*transport.Conn) {
	log.Printf("[INFO] Bird: subsystem disconnected")
}

func (h *BirdHub) OnLine(c *transport.Conn, line []byte) {
	msg, err := transport.DecodeLine(line)
	if err != nil {
		log.Printf("[ERROR] Bird: %v", err)
		return
	}
	if msg.Type == transport.TypeHeartbeat {
		return
	}
	if msg.Type != transport.TypeEvent || msg.Event != transport.EventBirdRiskChanged {
		log.Printf("[ERROR] Bird: unexpected message type=%q event=%q", msg.Type, msg.Event)
		return
	}

	level := BirdLevel(msg.Result)
	switch level {
	case BirdLow, BirdMedium, BirdHigh:
		h.machine.ProposeBird(level)
	default:
		log.Printf("[ERROR] Bird: invalid level %q", msg.Result)
	}
}
