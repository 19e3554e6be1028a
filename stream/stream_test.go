package stream

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PrincetonUniversity/ballpit"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

func testSim(t *testing.T) *ballpit.Simulation {
	t.Helper()
	s := ballpit.New(ballpit.Bounds{Width: 800, Height: 600}, ballpit.DefaultParams)
	bodies := []ballpit.Body{
		{Pos: mgl64.Vec2{100.04, 200.06}, Radius: 10, Mass: 1, Color: [3]float32{1, 0.5, 0}},
		{Pos: mgl64.Vec2{300, 400}, Radius: 12.25, Mass: 2, Color: [3]float32{0, 0, 2}},
	}
	for _, b := range bodies {
		if _, err := s.Add(b); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestNewFrame(t *testing.T) {
	s := testSim(t)
	f := NewFrame(s, 7)

	if f.Tick != 7 || f.Width != 800 || f.Height != 600 || f.CellSize != ballpit.DefaultParams.CellSize {
		t.Fatalf("unexpected header %+v", f)
	}
	if len(f.Bodies) != 2 {
		t.Fatalf("expected 2 bodies, got=%d", len(f.Bodies))
	}
	b := f.Bodies[0]
	if b.ID != 0 || b.X != 100 || b.Y != 200.1 || b.R != 10 {
		t.Fatalf("unexpected body 0 %+v", b)
	}
	if b.Color != [3]uint8{255, 127, 0} {
		t.Fatalf("unexpected color %v", b.Color)
	}
	if c := f.Bodies[1].Color; c != [3]uint8{0, 0, 255} {
		t.Fatalf("color not clamped: %v", c)
	}

	// frame is a copy
	s.Bodies[0].Pos = mgl64.Vec2{0, 0}
	if f.Bodies[0].X != 100 {
		t.Fatal("frame shares memory with simulation")
	}
}

func TestBroadcast(t *testing.T) {
	var logs bytes.Buffer
	srv := NewServer(log.New(&logs, "", 0))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// registration happens in the handler, wait for it
	deadline := time.Now().Add(2 * time.Second)
	for srv.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := testSim(t)
	want := NewFrame(s, 3)
	if err := srv.Broadcast(want); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.BinaryMessage {
		t.Fatalf("expected binary message, got type %d", typ)
	}
	var got Frame
	if err := msgpack.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tick != want.Tick || len(got.Bodies) != len(want.Bodies) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want.Bodies {
		if got.Bodies[i] != want.Bodies[i] {
			t.Fatalf("body %d: got %+v, want %+v", i, got.Bodies[i], want.Bodies[i])
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	srv := NewServer(log.New(&bytes.Buffer{}, "", 0))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for srv.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for srv.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// broadcasting to nobody is fine
	if err := srv.Broadcast(Frame{Tick: 1}); err != nil {
		t.Fatal(err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := testSim(t)
	ctx, cancel := context.WithCancel(context.Background())

	var steps atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, s, &Config{
			Addr: "127.0.0.1:0",
			FPS:  200,
			Step: func() { steps.Add(1) },
			Log:  log.New(&bytes.Buffer{}, "", 0),
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for steps.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("simulation never stepped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRunRejectsBadFPS(t *testing.T) {
	err := Run(context.Background(), testSim(t), &Config{Addr: "127.0.0.1:0", Step: func() {}})
	if err == nil {
		t.Fatal("expected error for zero fps")
	}
}

// deadConn returns a server side connection whose transport is already closed.
func deadConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var u websocket.Upgrader
		c, err := u.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	c := <-conns
	c.UnderlyingConn().Close()
	return c
}

func TestWriteFailuresAreLogged(t *testing.T) {
	var logs bytes.Buffer
	srv := NewServer(log.New(&logs, "", 0))

	srv.conns[deadConn(t)] = struct{}{}
	if err := srv.Broadcast(Frame{Tick: 1}); err != nil {
		t.Fatal(err)
	}
	if srv.Clients() != 0 {
		t.Fatalf("expected failed client to be dropped, got=%d", srv.Clients())
	}
	if !strings.Contains(logs.String(), "failed") {
		t.Fatalf("expected write failure in logs, got %q", logs.String())
	}

	logs.Reset()
	srv.conns[deadConn(t)] = struct{}{}
	srv.Close()
	if !strings.Contains(logs.String(), "close message") {
		t.Fatalf("expected close failure in logs, got %q", logs.String())
	}
}

func TestCloseNotifiesClients(t *testing.T) {
	srv := NewServer(log.New(&bytes.Buffer{}, "", 0))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going away close, got %v", err)
	}
}
