package stream

import (
	"image"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

const (
	// StreamJPEGQuality trades fidelity for encode latency on the live stream
	StreamJPEGQuality = 60
)

// EncodedFrame is a private copy of the latest streaming-quality frame
type EncodedFrame struct {
	ID        uint64
	CaptureMs uint64
	JPEG      []byte
}

// Stats is an instantaneous view of the store
type Stats struct {
	FrameID   uint64
	CaptureMs uint64
	ServerMs  uint64
	FPS       float64
}

// FrameStore holds the latest encoded stream frame and the latest raw frame.
//
// The two slots have independent locks so a slow snapshot encode never
// stalls stream readers and the other way round. No lock is held while
// encoding or while a reader writes to its socket.
type FrameStore struct {
	enc    Encoder
	logger Logger
	now    func() time.Time

	mu        sync.Mutex // Protects every field below up to rawMu
	cond      *sync.Cond
	jpeg      []byte
	frameID   uint64
	captureMs uint64
	rate      RateEstimator
	closed    bool
	epoch     uint64 // Bumped on every reset, one value per server run

	rawMu sync.Mutex
	raw   image.Image
}

func NewFrameStore(enc Encoder, logger Logger) *FrameStore {
	s := &FrameStore{
		enc:    enc,
		logger: logger,
		now:    time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// UpdateFrame publishes a newly captured frame. It is called from the capture
// goroutine. Encode failures drop the frame without touching the frame id.
func (s *FrameStore) UpdateFrame(img image.Image) {
	if img == nil || img.Bounds().Empty() {
		return
	}

	captureMs := unixMillis(s.now())

	// Full resolution copy for snapshots
	raw := cloneImage(img)
	s.rawMu.Lock()
	s.raw = raw
	s.rawMu.Unlock()

	s.mu.Lock()
	s.rate.Observe(captureMs)
	s.mu.Unlock()

	data, err := s.enc.Encode(img, JPEG, StreamJPEGQuality)
	if err != nil || len(data) == 0 {
		s.logger.Debugf("Dropping frame: %v", err)
		return
	}

	s.mu.Lock()
	s.jpeg = data
	s.frameID++
	s.captureMs = captureMs
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Epoch identifies the current server run. Readers capture it once and
// pass it to WaitForNewFrame.
func (s *FrameStore) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// WaitForNewFrame blocks until a frame with an id other than lastSeen is
// available, and returns a copy of it. ok is false once the store is closed
// or reopened for a later run than epoch.
func (s *FrameStore) WaitForNewFrame(epoch, lastSeen uint64) (frame EncodedFrame, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && s.epoch == epoch && (s.frameID == lastSeen || len(s.jpeg) == 0) {
		s.cond.Wait()
	}
	if s.closed || s.epoch != epoch {
		return EncodedFrame{}, false
	}

	buf := make([]byte, len(s.jpeg))
	copy(buf, s.jpeg)
	return EncodedFrame{ID: s.frameID, CaptureMs: s.captureMs, JPEG: buf}, true
}

// Snapshot returns a copy of the latest raw frame, or false if none arrived yet.
func (s *FrameStore) Snapshot() (image.Image, bool) {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()

	if s.raw == nil {
		return nil, false
	}
	return cloneImage(s.raw), true
}

func (s *FrameStore) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		FrameID:   s.frameID,
		CaptureMs: s.captureMs,
		FPS:       s.rate.FPS(),
	}
	s.mu.Unlock()

	st.ServerMs = unixMillis(s.now())
	return st
}

// Close wakes every goroutine blocked in WaitForNewFrame and makes
// further waits return immediately.
func (s *FrameStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// reset reopens the store for a new server run and returns its epoch.
// Readers of earlier runs that have not yet observed Close see the epoch
// change and stop.
func (s *FrameStore) reset() uint64 {
	s.rawMu.Lock()
	s.raw = nil
	s.rawMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	s.jpeg = nil
	s.frameID = 0
	s.captureMs = 0
	s.rate.Reset()
	s.epoch++
	s.cond.Broadcast()
	return s.epoch
}

func unixMillis(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}

// cloneImage deep-copies img. Capture drivers may reuse their buffers after
// handing a frame over, so the store never keeps a caller's image.
func cloneImage(img image.Image) image.Image {
	switch src := img.(type) {
	case *image.RGBA:
		c := *src
		c.Pix = append([]uint8(nil), src.Pix...)
		return &c
	case *image.NRGBA:
		c := *src
		c.Pix = append([]uint8(nil), src.Pix...)
		return &c
	case *image.Gray:
		c := *src
		c.Pix = append([]uint8(nil), src.Pix...)
		return &c
	case *image.YCbCr:
		c := *src
		c.Y = append([]uint8(nil), src.Y...)
		c.Cb = append([]uint8(nil), src.Cb...)
		c.Cr = append([]uint8(nil), src.Cr...)
		return &c
	}

	b := img.Bounds()
	dst := image.NewRGBA(b)
	xdraw.Draw(dst, b, img, b.Min, xdraw.Src)
	return dst
}
