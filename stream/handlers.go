package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Boundary of the multipart MJPEG stream
	streamBoundary = "frame"

	// SnapshotPNGCompression favours small downloads over encode speed
	SnapshotPNGCompression = png.BestCompression

	// Log stream stats every this many frames
	streamLogInterval = 100

	defaultSnapshotPrefix = "snapshot"
	snapshotPrefixParam   = "?prefix="

	notFoundBody = "<h1>404 Not Found</h1>"
)

// writeResponse writes a complete one-shot response. extra holds additional
// header lines without the trailing CRLF.
func writeResponse(w io.Writer, status int, contentType string, body []byte, extra ...string) error {
	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(&hdr, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&hdr, "Content-Length: %d\r\n", len(body))
	for _, h := range extra {
		hdr.WriteString(h)
		hdr.WriteString("\r\n")
	}
	hdr.WriteString("Connection: close\r\n\r\n")

	bufs := net.Buffers{hdr.Bytes(), body}
	_, err := bufs.WriteTo(w)
	return err
}

func (s *Server) serveViewer(w io.Writer) error {
	return writeResponse(w, http.StatusOK, "text/html; charset=utf-8", []byte(viewerHTML))
}

func (s *Server) serveNotFound(w io.Writer) error {
	return writeResponse(w, http.StatusNotFound, "text/html", []byte(notFoundBody))
}

// serveStream writes the MJPEG multipart stream until the client goes away
// or the run that accepted it stops. Only the newest frame at wake-up is
// sent, so slow clients skip frames instead of queueing them.
func (s *Server) serveStream(conn net.Conn, epoch uint64) {
	const header = "HTTP/1.1 200 OK\r\n" +
		"Content-Type: multipart/x-mixed-replace; boundary=" + streamBoundary + "\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Connection: close\r\n\r\n"
	if _, err := io.WriteString(conn, header); err != nil {
		return
	}

	s.logger.Printf("MJPEG stream client connected: %s", conn.RemoteAddr())

	var lastSent uint64
	frameCount := 0
	defer func() {
		s.logger.Printf("MJPEG stream client disconnected: %s (%d frames sent)", conn.RemoteAddr(), frameCount)
	}()

	crlf := []byte("\r\n")
	for {
		frame, ok := s.store.WaitForNewFrame(epoch, lastSent)
		if !ok {
			return
		}
		lastSent = frame.ID

		part := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(frame.JPEG))
		bufs := net.Buffers{[]byte(part), frame.JPEG, crlf}
		if _, err := bufs.WriteTo(conn); err != nil {
			return
		}

		frameCount++
		if frameCount%streamLogInterval == 0 {
			s.logger.Debugf("MJPEG stream %s: sent %d frames", conn.RemoteAddr(), frameCount)
		}
	}
}

// fixed2 marshals a float with exactly two decimals
type fixed2 float64

func (f fixed2) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(f), 'f', 2, 64)), nil
}

type statsResponse struct {
	LatestFrameID     uint64 `json:"latestFrameId"`
	LatestCaptureTsMs uint64 `json:"latestCaptureTsMs"`
	ServerTsMs        uint64 `json:"serverTsMs"`
	EstimatedFps      fixed2 `json:"estimatedFps"`
}

func (s *Server) serveStats(w io.Writer) error {
	st := s.store.Stats()
	body, err := json.Marshal(statsResponse{
		LatestFrameID:     st.FrameID,
		LatestCaptureTsMs: st.CaptureMs,
		ServerTsMs:        st.ServerMs,
		EstimatedFps:      fixed2(st.FPS),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return writeResponse(w, http.StatusOK, "application/json; charset=utf-8", body)
}

// serveSnapshot sends the latest raw frame as a lossless PNG download.
// Failures answer 200 with an HTML body; the viewer only triggers a
// download, so the status is kept for compatibility and logged instead.
func (s *Server) serveSnapshot(w io.Writer, path string) error {
	prefix := snapshotPrefix(path)

	img, ok := s.store.Snapshot()
	if !ok {
		s.logger.Warnf("Snapshot requested but no frame is available")
		return writeResponse(w, http.StatusOK, "text/html; charset=utf-8",
			[]byte("<h1>Error</h1><p>No frame available</p>"))
	}

	data, err := s.enc.Encode(img, PNG, int(SnapshotPNGCompression))
	if err != nil {
		s.logger.Warnf("Snapshot encoding failed: %v", err)
		return writeResponse(w, http.StatusOK, "text/html; charset=utf-8",
			[]byte("<h1>Error</h1><p>Image encoding failed</p>"))
	}

	filename := snapshotFilename(prefix, time.Now())
	err = writeResponse(w, http.StatusOK, "image/png", data,
		fmt.Sprintf("Content-Disposition: attachment; filename=%q", filename),
		"Cache-Control: no-cache")
	if err == nil {
		s.logger.Printf("Sent snapshot %s (%d KB, PNG)", filename, len(data)/1024)
	}
	return err
}

// snapshotPrefix extracts the prefix query parameter. Only %20 is decoded,
// and anything outside [A-Za-z0-9_-] falls back to the default since the
// value ends up in a response header.
func snapshotPrefix(path string) string {
	i := strings.Index(path, snapshotPrefixParam)
	if i < 0 {
		return defaultSnapshotPrefix
	}

	prefix := path[i+len(snapshotPrefixParam):]
	if j := strings.IndexByte(prefix, '&'); j >= 0 {
		prefix = prefix[:j]
	}
	prefix = strings.ReplaceAll(prefix, "%20", " ")

	if !validPrefix(prefix) {
		return defaultSnapshotPrefix
	}
	return prefix
}

func validPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, c := range prefix {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func snapshotFilename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.png", prefix, t.Format("20060102_150405"))
}
