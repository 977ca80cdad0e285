package stream

import (
	"net"
	"strings"
)

// requestBufferSize bounds the request we look at. Requests are read with a
// single Read; anything split across reads is routed on what arrived first.
const requestBufferSize = 4096

type route int

const (
	routeNotFound route = iota
	routeViewer
	routeStream
	routeStats
	routeSnapshot
)

func (r route) String() string {
	switch r {
	case routeViewer:
		return "viewer"
	case routeStream:
		return "stream"
	case routeStats:
		return "stats"
	case routeSnapshot:
		return "snapshot"
	default:
		return "not-found"
	}
}

// handleConn serves one request and closes conn on every path. epoch is
// the run that accepted conn.
func (s *Server) handleConn(conn net.Conn, epoch uint64) {
	defer conn.Close()

	buf := make([]byte, requestBufferSize)
	n, err := conn.Read(buf)
	if n <= 0 {
		if err != nil {
			s.logger.Debugf("Read from %s failed: %v", conn.RemoteAddr(), err)
		}
		return
	}

	path := requestPath(string(buf[:n]))
	r := matchRoute(path)
	s.logger.Debugf("%s GET %s -> %s", conn.RemoteAddr(), path, r)

	switch r {
	case routeViewer:
		err = s.serveViewer(conn)
	case routeStream:
		s.serveStream(conn, epoch)
	case routeStats:
		err = s.serveStats(conn)
	case routeSnapshot:
		err = s.serveSnapshot(conn, path)
	default:
		err = s.serveNotFound(conn)
	}
	if err != nil {
		s.logger.Debugf("Response to %s failed: %v", conn.RemoteAddr(), err)
	}
}

// requestPath returns the token between the first and second space of the
// request line. Malformed input yields whatever substring results.
func requestPath(request string) string {
	start := strings.IndexByte(request, ' ') + 1
	end := strings.IndexByte(request[start:], ' ')
	if end < 0 {
		return request[start:]
	}
	return request[start : start+end]
}

// matchRoute maps a path to its handler, first prefix match wins
func matchRoute(path string) route {
	switch {
	case path == "/", strings.HasPrefix(path, "/viewer"), strings.HasPrefix(path, "/?"):
		return routeViewer
	case strings.HasPrefix(path, "/stream"):
		return routeStream
	case strings.HasPrefix(path, "/stats"):
		return routeStats
	case strings.HasPrefix(path, "/snapshot"):
		return routeSnapshot
	default:
		return routeNotFound
	}
}
