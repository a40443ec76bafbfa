package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/technosupport/falcon/internal/codec"
	"github.com/technosupport/falcon/internal/metrics"
)

// ErrFrameTooLarge means the frame would not fit a datagram even at the
// lowest JPEG quality. The frame is dropped; the stream continues.
var ErrFrameTooLarge = errors.New("frame exceeds datagram budget at minimum quality")

const (
	minStreamQuality  = 10
	qualityStep       = 10
	recvBufferBytes   = 128 * 1024
	datagramReadBytes = 1 << 16
)

// VideoSender streams JPEG frames over UDP. Frames above the datagram budget
// are re-encoded at stepped-down quality until they fit.
type VideoSender struct {
	conn        net.Conn
	maxDatagram int
	quality     int
}

func NewVideoSender(addr string, quality, maxDatagram int) (*VideoSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("video stream: dial %s: %w", addr, err)
	}
	return &VideoSender{
		conn:        conn,
		maxDatagram: maxDatagram,
		quality:     quality,
	}, nil
}

// SendFrame encodes and ships one frame. Quality steps down per attempt
// until the datagram fits; a frame that cannot fit at minimum quality is
// dropped with a warning.
func (s *VideoSender) SendFrame(f *codec.Frame) error {
	header := codec.BuildHeader(f.CameraID, f.ID)
	budget := s.maxDatagram - len(header)

	for q := s.quality; q >= minStreamQuality; q -= qualityStep {
		payload, err := codec.EncodeJPEG(f.Img, q)
		if err != nil {
			return err
		}
		if len(payload) > budget {
			continue
		}
		if q != s.quality {
			log.Printf("[INFO] Video stream: frame %d sent at reduced quality %d", f.ID, q)
		}
		if _, err := s.conn.Write(append(header, payload...)); err != nil {
			return fmt.Errorf("video stream: write: %w", err)
		}
		metrics.RecordVideoDatagram("out")
		return nil
	}

	log.Printf("[ERROR] Video stream: frame %d too large at minimum quality, dropped", f.ID)
	return ErrFrameTooLarge
}

func (s *VideoSender) Close() error { return s.conn.Close() }

// VideoReceiver listens for frame datagrams and hands decoded payloads to a
// callback. Frames arriving out of order are discarded per camera: a frame
// id at or below the newest delivered one is stale.
type VideoReceiver struct {
	conn   *net.UDPConn
	lastID map[string]int64
}

func NewVideoReceiver(addr string) (*VideoReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("video ingest: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("video ingest: listen %s: %w", addr, err)
	}
	if err := conn.SetReadBuffer(recvBufferBytes); err != nil {
		log.Printf("[ERROR] Video ingest: set read buffer: %v", err)
	}
	return &VideoReceiver{
		conn:   conn,
		lastID: make(map[string]int64),
	}, nil
}

// Run reads datagrams until ctx is done. handle is called on the receiver
// goroutine; it must copy the payload if it keeps it.
func (r *VideoReceiver) Run(ctx context.Context, handle func(cameraID string, frameID int64, jpeg []byte)) {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, datagramReadBytes)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ERROR] Video ingest: read: %v", err)
			continue
		}

		cameraID, frameID, payload, err := codec.ParseDatagram(buf[:n])
		if err != nil {
			log.Printf("[ERROR] Video ingest: %v", err)
			continue
		}
		if frameID <= r.lastID[cameraID] {
			continue
		}
		r.lastID[cameraID] = frameID

		metrics.RecordVideoDatagram("in")
		handle(cameraID, frameID, payload)
	}
}

// LocalAddr reports the bound address, useful with ":0" listeners in tests.
func (r *VideoReceiver) LocalAddr() string { return r.conn.LocalAddr().String() }
