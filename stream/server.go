// Package stream broadcasts a running ballpit simulation to websocket clients.
//
// Every frame is encoded once with msgpack and sent as a binary message
// to all connected clients. Clients are read-only; anything they send is discarded.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/PrincetonUniversity/ballpit"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const writeTimeout = 2 * time.Second

// Logger is an alias used for dependency injection.
type Logger = log.Logger

// NewLogger returns a standard logger with a consistent service prefix.
func NewLogger(service string) *Logger {
	return log.New(os.Stderr, "["+service+"] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Server keeps track of websocket clients and broadcasts frames to them.
type Server struct {
	upgrader websocket.Upgrader
	log      *Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer returns a server logging to logger.
func NewServer(logger *Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      logger,
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client
// until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("upgrade error: %v", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()
	s.log.Printf("client %s connected (%d total)", conn.RemoteAddr(), n)

	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast sends f to every client. Clients that cannot keep up are dropped.
func (s *Server) Broadcast(f Frame) error {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return fmt.Errorf("stream: encoding frame %d: %w", f.Tick, err)
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			s.log.Printf("deadline for %s failed: %v", c.RemoteAddr(), err)
			s.drop(c)
			continue
		}
		if err := c.WriteMessage(websocket.BinaryMessage, data); err != nil {
			s.log.Printf("write to %s failed: %v", c.RemoteAddr(), err)
			s.drop(c)
		}
	}
	return nil
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	for c := range conns {
		err := c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		if err != nil {
			s.log.Printf("close message to %s failed: %v", c.RemoteAddr(), err)
		}
		c.Close()
	}
}

func (s *Server) drop(c *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.conns[c]
	delete(s.conns, c)
	n := len(s.conns)
	s.mu.Unlock()
	c.Close()
	if ok {
		s.log.Printf("client %s disconnected (%d left)", c.RemoteAddr(), n)
	}
}

// Config holds the parameters of the stream driver.
type Config struct {
	Addr  string        // listen address, e.g. ":8080"
	FPS   int           // frames per second
	Step  func()        // go to next frame
	Log   *Logger       // may be nil
	Grace time.Duration // time allowed for HTTP shutdown
}

// Run serves the simulation on conf.Addr at path "/" until ctx is done.
// Every tick it calls conf.Step and broadcasts the resulting frame.
func Run(ctx context.Context, s *ballpit.Simulation, conf *Config) error {
	if conf.FPS <= 0 {
		return fmt.Errorf("stream: fps must be positive, got %d", conf.FPS)
	}
	logger := conf.Log
	if logger == nil {
		logger = NewLogger("stream")
	}

	ln, err := net.Listen("tcp", conf.Addr)
	if err != nil {
		return err
	}
	srv := NewServer(logger)
	hs := &http.Server{Handler: srv, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		errc <- hs.Serve(ln)
	}()
	logger.Printf("streaming %d bodies on ws://%s/ at %d fps", len(s.Bodies), ln.Addr(), conf.FPS)

	ticker := time.NewTicker(time.Second / time.Duration(conf.FPS))
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			grace := conf.Grace
			if grace <= 0 {
				grace = 5 * time.Second
			}
			sctx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			srv.Close()
			if err := hs.Shutdown(sctx); err != nil {
				return err
			}
			logger.Printf("stopped after %d frames", tick)
			return nil
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			conf.Step()
			tick++
			if err := srv.Broadcast(NewFrame(s, tick)); err != nil {
				return err
			}
		}
	}
}
