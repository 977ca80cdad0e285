package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/exp/mmap"
)

const (
	// Frame extraction buffers
	TailWindowKB   = 1024 // Read at most the last 1MB of the file
	MaxFrameSizeKB = 512  // Max size to search backwards for frame start (prevents old frames)
	MinFileSize    = 100  // Skip extraction if file too small (not enough data yet)
	BytesPerKB     = 1024

	SegmentExtension = ".mjpeg"
)

// MJPEGFileSource follows MJPEG output that another process keeps
// appending to. path is either a single file or a directory of segments,
// such as the Recorder output, in which case the newest segment is tailed.
// MJPEG is concatenated JPEGs, so the newest frame is found by scanning
// backwards from the end.
type MJPEGFileSource struct {
	path     string
	interval time.Duration
	logger   Logger

	next     time.Time
	lastHash uint64
}

func NewMJPEGFileSource(path string, fps int, logger Logger) *MJPEGFileSource {
	return &MJPEGFileSource{
		path:     path,
		interval: frameInterval(fps),
		logger:   logger,
	}
}

// Open does not require the path to exist yet, the recorder may still be
// starting up.
func (s *MJPEGFileSource) Open() error {
	if s.path == "" {
		return fmt.Errorf("no MJPEG path configured")
	}
	s.next = time.Time{}
	s.lastHash = 0
	return nil
}

// Next polls once per frame interval. It returns ErrNoFrame when there is
// no complete frame yet or the newest one was already returned.
func (s *MJPEGFileSource) Next(ctx context.Context) (image.Image, error) {
	if wait := time.Until(s.next); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	s.next = time.Now().Add(s.interval)

	filename := s.currentFile()
	if filename == "" {
		return nil, ErrNoFrame
	}
	data, err := extractLastJPEGFromFile(filename)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}

	h := frameHash(data)
	if h == s.lastHash {
		return nil, ErrNoFrame
	}
	s.lastHash = h

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame from %s: %w", filepath.Base(filename), err)
	}
	return img, nil
}

func (s *MJPEGFileSource) Close() error {
	return nil
}

// currentFile resolves the path to the file to read, "" if none exists yet
func (s *MJPEGFileSource) currentFile() string {
	info, err := os.Stat(s.path)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return s.path
	}
	return latestSegment(s.path, s.logger)
}

// latestSegment returns the most recently modified .mjpeg file in dir
func latestSegment(dir string, logger Logger) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warnf("Failed to read segment directory '%s': %v", dir, err)
		return ""
	}

	var (
		latestFile string
		latestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, SegmentExtension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Pruned between ReadDir and Info
			continue
		}
		// Names carry the start time, so they break modtime ties
		if info.ModTime().After(latestTime) || (info.ModTime().Equal(latestTime) && name > filepath.Base(latestFile)) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, name)
		}
	}
	return latestFile
}

// extractLastJPEGFromFile maps the file and returns a copy of its last
// complete JPEG, nil if there is none yet. Falls back to plain reads if
// mmap is unavailable.
func extractLastJPEGFromFile(filename string) ([]byte, error) {
	var (
		r    io.ReaderAt
		size int64
	)

	m, err := mmap.Open(filename)
	if err == nil {
		defer m.Close()
		r, size = m, int64(m.Len())
	} else {
		f, err := os.Open(filename)
		if err != nil {
			return nil, nil
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, nil
		}
		r, size = f, info.Size()
	}

	if size < MinFileSize {
		return nil, nil
	}

	buf, err := readTail(r, size, TailWindowKB*BytesPerKB)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(filename), err)
	}

	frame := lastJPEG(buf)
	if frame == nil {
		return nil, nil
	}
	return append([]byte(nil), frame...), nil
}

// readTail copies up to window bytes from the end of r. A mapped file that
// is truncated by its writer faults on access; that fault is turned into
// an error instead of killing the process.
func readTail(r io.ReaderAt, size, window int64) (buf []byte, err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if p := recover(); p != nil {
			re, ok := p.(runtime.Error)
			if !ok {
				panic(p)
			}
			buf, err = nil, fmt.Errorf("file shrank while reading: %w", re)
		}
	}()

	if window > size {
		window = size
	}
	buf = make([]byte, window)
	n, err := r.ReadAt(buf, size-window)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// lastJPEG returns the last complete FFD8..FFD9 frame in buf, or nil. The
// backwards search for the start marker is bounded so a truncated frame is
// never glued onto an older one.
func lastJPEG(buf []byte) []byte {
	end := -1
	for i := len(buf) - 2; i >= 0; i-- {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil
	}

	limit := end - MaxFrameSizeKB*BytesPerKB
	if limit < 0 {
		limit = 0
	}
	for i := end - 4; i >= limit; i-- {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			return buf[i:end]
		}
	}
	return nil
}

// frameHash is a cheap fingerprint built from the length and a few sampled
// bytes, enough to tell whether the writer appended a new frame.
func frameHash(data []byte) uint64 {
	h := uint64(len(data))
	if len(data) >= 16 {
		h ^= uint64(data[0])<<56 | uint64(data[8])<<32 |
			uint64(data[len(data)/2])<<24 |
			uint64(data[len(data)-8])<<16 | uint64(data[len(data)-1])
	}
	return h
}
