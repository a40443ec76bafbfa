// Package dispatch is the server core: it ingests detection batches and
// video, joins them for the operator console, gates first observations into
// the repository, and owns the airfield risk state.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const busSubjectPrefix = "falcon.events."

// BusEvent is one broadcast-worthy occurrence published on the internal bus.
// Line is the pre-formatted operator console line; Crop optionally carries
// the JPEG bytes appended after the '$' separator on the console link.
type BusEvent struct {
	Kind string `json:"kind"`
	Line string `json:"line"`
	Crop []byte `json:"crop,omitempty"`
}

// Bus publishes dispatch events over NATS so console fan-out is decoupled
// from the producers. Publish retries with linear backoff.
type Bus struct {
	conn       *nats.Conn
	maxRetries int
}

func NewBus(conn *nats.Conn, maxRetries int) *Bus {
	return &Bus{conn: conn, maxRetries: maxRetries}
}

func (b *Bus) Publish(ev BusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal bus event: %w", err)
	}
	subject := busSubjectPrefix + strings.ToLower(ev.Kind)

	for i := 0; i <= b.maxRetries; i++ {
		err = b.conn.Publish(subject, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish %s failed after %d retries: %w", subject, b.maxRetries, err)
}

// Subscribe delivers every dispatch event to handler on the NATS callback
// goroutine.
func (b *Bus) Subscribe(handler func(BusEvent)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(busSubjectPrefix+">", func(msg *nats.Msg) {
		var ev BusEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", busSubjectPrefix+">", err)
	}
	return sub, nil
}
