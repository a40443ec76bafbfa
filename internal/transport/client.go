package transport

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"
)

// ErrNotConnected is returned by Send while the link is down. Callers drop
// the batch; detections are only useful live.
var ErrNotConnected = errors.New("event channel not connected")

const (
	connectTimeout = 5 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 5 * time.Second
	maxLineBytes   = 1 << 20
)

// Client keeps a line-JSON TCP connection to the dispatch server alive,
// reconnecting with doubling backoff (1s up to 5s, reset on a successful
// dial). Incoming messages (commands from the server) are delivered on the
// channel passed to Run.
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Run dials and re-dials until ctx is done, pushing received messages to
// incoming. Malformed lines are logged and skipped.
func (c *Client) Run(ctx context.Context, incoming chan<- Message) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		conn, err := net.DialTimeout("tcp", c.addr, connectTimeout)
		if err != nil {
			log.Printf("[ERROR] Event channel: connect %s: %v (retrying in %s)", c.addr, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
		log.Printf("[INFO] Event channel: connected to %s", c.addr)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoop(ctx, conn, incoming)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() == nil {
			log.Printf("[INFO] Event channel: disconnected, reconnecting in %s", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn, incoming chan<- Message) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		msg, err := DecodeLine(scanner.Bytes())
		if err != nil {
			log.Printf("[ERROR] Event channel: %v", err)
			continue
		}
		select {
		case incoming <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Send writes one message. Concurrent-safe; fails fast while disconnected.
func (c *Client) Send(m Message) error {
	line, err := EncodeLine(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.conn.Write(line); err != nil {
		// The read loop notices the broken pipe and reconnects.
		c.conn.Close()
		return err
	}
	return nil
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
