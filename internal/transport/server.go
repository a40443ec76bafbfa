package transport

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
)

// Conn is one accepted endpoint connection. Writes go through a buffered
// outbound queue drained by a dedicated goroutine, so one slow console never
// stalls the dispatcher. When the queue is full the payload is dropped.
type Conn struct {
	name string
	conn net.Conn

	out  chan []byte
	once sync.Once
	done chan struct{}
}

const outQueueDepth = 64

// RemoteAddr identifies the peer for logging.
func (c *Conn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// SendRaw queues raw bytes (the caller includes any terminator).
func (c *Conn) SendRaw(b []byte) {
	select {
	case c.out <- b:
	case <-c.done:
	default:
		log.Printf("[ERROR] %s: send queue full for %s, dropping payload", c.name, c.RemoteAddr())
	}
}

// SendLine queues a text line, appending the newline terminator.
func (c *Conn) SendLine(s string) {
	c.SendRaw(append([]byte(s), '\n'))
}

// SendMessage queues a line-JSON message.
func (c *Conn) SendMessage(m Message) {
	line, err := EncodeLine(m)
	if err != nil {
		log.Printf("[ERROR] %s: %v", c.name, err)
		return
	}
	c.SendRaw(line)
}

// Close tears the connection down; safe to call from any goroutine.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			if _, err := c.conn.Write(b); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Handler reacts to connection lifecycle and inbound lines. Lines arrive
// without their trailing newline. The byte slice is only valid during the
// call.
type Handler interface {
	OnConnect(c *Conn)
	OnLine(c *Conn, line []byte)
	OnDisconnect(c *Conn)
}

// LineServer accepts TCP connections on one endpoint and feeds them to a
// Handler. It tracks live connections for Broadcast.
type LineServer struct {
	name    string
	handler Handler

	ln net.Listener

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewLineServer(name string, handler Handler) *LineServer {
	return &LineServer{
		name:    name,
		handler: handler,
		conns:   make(map[*Conn]struct{}),
	}
}

// Listen binds the endpoint. Call before Serve.
func (s *LineServer) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", s.name, addr, err)
	}
	s.ln = ln
	log.Printf("[INFO] %s: listening on %s", s.name, ln.Addr())
	return nil
}

// Addr reports the bound address, useful with ":0" listeners in tests.
func (s *LineServer) Addr() string { return s.ln.Addr().String() }

// Serve accepts connections until ctx is done.
func (s *LineServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[ERROR] %s: accept: %v", s.name, err)
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *LineServer) serveConn(ctx context.Context, nc net.Conn) {
	c := &Conn{
		name: s.name,
		conn: nc,
		out:  make(chan []byte, outQueueDepth),
		done: make(chan struct{}),
	}
	log.Printf("[INFO] %s: %s connected", s.name, c.RemoteAddr())

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	s.handler.OnConnect(c)

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		s.handler.OnLine(c, scanner.Bytes())
	}

	c.Close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	s.handler.OnDisconnect(c)
	log.Printf("[INFO] %s: %s disconnected", s.name, c.RemoteAddr())
}

// Broadcast queues raw bytes on every live connection.
func (s *LineServer) Broadcast(b []byte) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.SendRaw(b)
	}
}

// BroadcastLine queues a text line on every live connection.
func (s *LineServer) BroadcastLine(line string) {
	s.Broadcast(append([]byte(line), '\n'))
}

// ConnCount reports live connections.
func (s *LineServer) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
