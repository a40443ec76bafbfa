package transport

import (
	"bufio"
	"context"
	"image"
	"image/color"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/falcon/internal/codec"
)

func TestEncodeDecodeLine(t *testing.T) {
	msg := NewEvent(EventObjectDetected, "A", time.Now())
	msg.Detections = []WireDetection{{
		ObjectID:    "17181357721913",
		Class:       "BIRD",
		BBox:        [4]int{10, 20, 30, 40},
		Confidence:  0.87,
		ImgID:       1718135772191843820,
		RescueLevel: "0",
	}}

	line, err := EncodeLine(msg)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	got, err := DecodeLine(line[:len(line)-1])
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeLine_MissingType(t *testing.T) {
	_, err := DecodeLine([]byte(`{"event":"object_detected"}`))
	assert.ErrorContains(t, err, "missing type")

	_, err = DecodeLine([]byte(`not json`))
	assert.Error(t, err)
}

type recordingHandler struct {
	mu        sync.Mutex
	lines     []string
	connects  int
	greetConn bool
}

func (h *recordingHandler) OnConnect(c *Conn) {
	h.mu.Lock()
	h.connects++
	greet := h.greetConn
	h.mu.Unlock()
	if greet {
		c.SendMessage(Message{Type: TypeCommand, Command: CmdSetModeObject})
	}
}

func (h *recordingHandler) OnLine(_ *Conn, line []byte) {
	h.mu.Lock()
	h.lines = append(h.lines, string(line))
	h.mu.Unlock()
}

func (h *recordingHandler) OnDisconnect(*Conn) {}

func (h *recordingHandler) snapshot() (int, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, append([]string(nil), h.lines...)
}

func TestLineServer_ReceiveAndBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &recordingHandler{}
	srv := NewLineServer("TestEndpoint", h)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("MC_OD:17181357721913\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, lines := h.snapshot()
		return len(lines) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, lines := h.snapshot()
	assert.Equal(t, "MC_OD:17181357721913", lines[0])

	srv.BroadcastLine("ME_BR:3")
	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	out, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ME_BR:3\n", out)
}

func TestClient_ReceivesGreetingAndSends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &recordingHandler{greetConn: true}
	srv := NewLineServer("Ingest", h)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Serve(ctx)

	client := NewClient(srv.Addr())
	incoming := make(chan Message, 4)
	go client.Run(ctx, incoming)

	select {
	case msg := <-incoming:
		assert.Equal(t, TypeCommand, msg.Type)
		assert.Equal(t, CmdSetModeObject, msg.Command)
	case <-time.After(3 * time.Second):
		t.Fatal("no greeting command received")
	}

	require.NoError(t, client.Send(NewEvent(EventMapCalibration, "A", time.Now())))
	require.Eventually(t, func() bool {
		_, lines := h.snapshot()
		return len(lines) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	client := NewClient("127.0.0.1:1")
	err := client.Send(Message{Type: TypeHeartbeat})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func testFrame(w, h int) *codec.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * y), G: uint8(x), B: uint8(y), A: 255})
		}
	}
	return codec.NewFrame("A", img, time.Now())
}

func TestVideoSendReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv, err := NewVideoReceiver("127.0.0.1:0")
	require.NoError(t, err)

	type got struct {
		camera string
		id     int64
		jpeg   []byte
	}
	frames := make(chan got, 4)
	go recv.Run(ctx, func(cam string, id int64, jpeg []byte) {
		frames <- got{cam, id, append([]byte(nil), jpeg...)}
	})

	sender, err := NewVideoSender(recv.LocalAddr(), 90, 65000)
	require.NoError(t, err)
	defer sender.Close()

	f := testFrame(64, 48)
	require.NoError(t, sender.SendFrame(f))

	select {
	case g := <-frames:
		assert.Equal(t, "A", g.camera)
		assert.Equal(t, f.ID, g.id)
		img, err := codec.DecodeJPEG(g.jpeg)
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestVideoSender_QualityStepDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv, err := NewVideoReceiver("127.0.0.1:0")
	require.NoError(t, err)
	frames := make(chan int, 4)
	go recv.Run(ctx, func(_ string, _ int64, jpeg []byte) {
		frames <- len(jpeg)
	})

	// A tight budget forces re-encoding at lower quality.
	f := testFrame(320, 240)
	full, err := codec.EncodeJPEG(f.Img, 90)
	require.NoError(t, err)
	budget := len(full) - 1

	sender, err := NewVideoSender(recv.LocalAddr(), 90, budget)
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.SendFrame(f))
	select {
	case n := <-frames:
		assert.Less(t, n, budget)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestVideoReceiver_DiscardsStaleFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv, err := NewVideoReceiver("127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var ids []int64
	go recv.Run(ctx, func(_ string, id int64, _ []byte) {
		mu.Lock()
		ids = append(ids, id)
		mu.Unlock()
	})

	conn, err := net.Dial("udp", recv.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	send := func(id int64) {
		data := append(codec.BuildHeader("A", id), 0xff, 0xd8)
		_, err := conn.Write(data)
		require.NoError(t, err)
	}
	send(100)
	send(50)  // stale, dropped
	send(100) // duplicate, dropped
	send(101)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{100, 101}, ids)
}
