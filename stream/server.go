package stream

import (
	"errors"
	"fmt"
	"image"
	"net"
	"sync"
	"time"
)

const (
	// DefaultPort is the HTTP port the preview is served on
	DefaultPort = 9595

	// ListenBacklog bounds pending connections; this is a single-operator tool
	ListenBacklog = 10

	// SendBufferBytes enlarges the kernel send buffer so a whole JPEG part
	// usually fits in one write
	SendBufferBytes = 64 * 1024

	// acceptRetryDelay avoids spinning on persistent accept failures
	acceptRetryDelay = 50 * time.Millisecond
)

// ErrAlreadyRunning is returned by Start unless the server is stopped
var ErrAlreadyRunning = errors.New("stream server already running")

// State of the server lifecycle
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Server serves the camera preview over HTTP: viewer page, MJPEG stream,
// stats and PNG snapshots. Each accepted connection gets its own goroutine
// and handles exactly one request.
//
// The owner feeds frames with UpdateFrame and controls the lifecycle with
// Start and Stop. Signal handling is the owner's job.
type Server struct {
	store  *FrameStore
	enc    Encoder
	logger Logger

	stateMu    sync.Mutex
	state      State
	acceptDone chan struct{}

	lnMu sync.Mutex // Protects ln against concurrent Start/Stop/accept loop access
	ln   net.Listener
}

func NewServer(enc Encoder, logger Logger) *Server {
	return &Server{
		store:  NewFrameStore(enc, logger),
		enc:    enc,
		logger: logger,
	}
}

// UpdateFrame hands a captured frame to the server. Safe to call before
// Start and after Stop.
func (s *Server) UpdateFrame(img image.Image) {
	s.store.UpdateFrame(img)
}

// Store exposes the shared frame store
func (s *Server) Store() *FrameStore {
	return s.store
}

// Start binds port and starts the accept loop in the background. Port 0
// picks a free port, see Addr.
func (s *Server) Start(port int) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state != Stopped {
		s.logger.Warnf("Stream server already %s", s.state)
		return ErrAlreadyRunning
	}
	s.state = Starting
	epoch := s.store.reset()

	ln, err := listenTCP(port, ListenBacklog)
	if err != nil {
		s.state = Stopped
		s.logger.Errorf("Stream server failed to start: %v", err)
		return fmt.Errorf("failed to start stream server: %w", err)
	}

	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()

	done := make(chan struct{})
	s.acceptDone = done
	go s.acceptLoop(ln, done, epoch)

	s.logger.Printf("Stream server starting on port %d", listenPort(ln))
	return nil
}

// Stop closes the listener and wakes every stream handler. It is idempotent
// and a no-op before Start. Connections already writing a response finish
// on their own and notice the shutdown on their next frame wait.
func (s *Server) Stop() {
	s.stateMu.Lock()
	if s.state == Stopped || s.state == Stopping {
		s.stateMu.Unlock()
		return
	}
	s.state = Stopping
	done := s.acceptDone
	s.stateMu.Unlock()

	s.logger.Printf("Stopping stream server...")
	s.closeListener()
	s.store.Close()
	<-done

	s.stateMu.Lock()
	s.state = Stopped
	s.acceptDone = nil
	s.stateMu.Unlock()
	s.logger.Printf("Stream server stopped")
}

// IsRunning reports whether the server is starting or serving
func (s *Server) IsRunning() bool {
	st := s.State()
	return st == Starting || st == Running
}

func (s *Server) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Addr returns the listening address, nil when stopped
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}, epoch uint64) {
	defer close(done)

	s.stateMu.Lock()
	if s.state == Starting {
		s.state = Running
	}
	s.stateMu.Unlock()

	ip := LocalIP()
	port := listenPort(ln)
	s.logger.Printf("======================================")
	s.logger.Printf("MJPEG camera stream server running")
	s.logger.Printf("Listening on port %d, local IP %s", port, ip)
	s.logger.Printf("Open http://%s:%d in a browser", ip, port)
	s.logger.Printf("======================================")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.IsRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warnf("Accept failed: %v", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		tuneConn(conn, s.logger)
		go s.handleConn(conn, epoch)
	}
}

func (s *Server) closeListener() {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
}

// tuneConn disables Nagle and grows the send buffer, both of which cut the
// delay between a frame being encoded and reaching the browser.
func tuneConn(conn net.Conn, logger Logger) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcp.SetNoDelay(true); err != nil {
		logger.Debugf("Failed to set TCP_NODELAY: %v", err)
	}
	if err := tcp.SetWriteBuffer(SendBufferBytes); err != nil {
		logger.Debugf("Failed to set send buffer: %v", err)
	}
}

func listenPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
