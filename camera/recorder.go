package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// Recorder kinds
	RecorderFFmpeg = "ffmpeg"
	RecorderRpicam = "rpicam"

	// FFmpeg stderr capture
	StderrBufferKB = 4

	// MJPEG quality passed to ffmpeg -q:v (2 best, 31 worst)
	ffmpegMJPEGQuality = 5

	// Pause between failing segments so a missing camera does not spin
	segmentRetryDelay = time.Second

	// Segments kept on disk, including the one being written
	DefaultKeepSegments = 3

	segmentTimeLayout = "2006-01-02_15-04-05.000"
)

// RecorderConfig describes the external MJPEG producer
type RecorderConfig struct {
	Kind          string
	Camera        Config
	Dir           string
	SegmentLength int // seconds
	KeepSegments  int
}

// Recorder runs ffmpeg or rpicam-vid in back-to-back segments, each into a
// new timestamped file in Dir. Files are never rewritten in place, so a
// reader that has one mapped never sees it shrink. Older segments beyond
// KeepSegments are removed.
type Recorder struct {
	cfg    RecorderConfig
	logger Logger

	cmdMu sync.Mutex
	cmd   *exec.Cmd

	lastErrorTime time.Time
}

func NewRecorder(cfg RecorderConfig, logger Logger) (*Recorder, error) {
	switch cfg.Kind {
	case RecorderFFmpeg, RecorderRpicam:
	default:
		return nil, fmt.Errorf("unknown recorder %q", cfg.Kind)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("recorder directory is empty")
	}
	if cfg.SegmentLength <= 0 {
		cfg.SegmentLength = 60
	}
	if cfg.KeepSegments < 2 {
		cfg.KeepSegments = DefaultKeepSegments
	}
	if _, err := exec.LookPath(cfg.binary()); err != nil {
		return nil, fmt.Errorf("%s not available: %w", cfg.binary(), err)
	}
	return &Recorder{cfg: cfg, logger: logger}, nil
}

// Run records segments until ctx is cancelled
func (r *Recorder) Run(ctx context.Context) error {
	if err := os.MkdirAll(r.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Make room for the new segment
		if err := pruneSegments(r.cfg.Dir, r.cfg.KeepSegments-1); err != nil {
			r.logger.Warnf("Failed to prune segments: %v", err)
		}

		filename := r.cfg.segmentPath(time.Now())
		r.logger.Debugf("Starting %s segment: %s", r.cfg.Kind, filepath.Base(filename))
		if err := r.recordSegment(ctx, filename); err != nil && ctx.Err() == nil {
			if time.Since(r.lastErrorTime) > 5*time.Second {
				r.logger.Warnf("Recording error: %v", err)
				r.lastErrorTime = time.Now()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(segmentRetryDelay):
			}
		}
	}
}

// Stop kills the running segment. Run returns once its context is done.
func (r *Recorder) Stop() {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if r.cmd != nil && r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
}

func (r *Recorder) recordSegment(ctx context.Context, filename string) error {
	cmd := exec.CommandContext(ctx, r.cfg.binary(), r.cfg.args(filename)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", r.cfg.binary(), err)
	}
	r.cmdMu.Lock()
	r.cmd = cmd
	r.cmdMu.Unlock()

	// Capture stderr to help diagnose device problems
	var stderrOutput strings.Builder
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		buf := make([]byte, StderrBufferKB*BytesPerKB)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				stderrOutput.Write(buf[:n])
			}
			if err != nil {
				break
			}
		}
	}()

	<-stderrDone
	recordErr := cmd.Wait()

	r.cmdMu.Lock()
	r.cmd = nil
	r.cmdMu.Unlock()

	var exitErr *exec.ExitError
	if recordErr != nil && errors.As(recordErr, &exitErr) && stderrOutput.Len() > 0 {
		r.logger.Printf("%s error output: %s", r.cfg.binary(), strings.TrimSpace(stderrOutput.String()))
	}
	return recordErr
}

func (c RecorderConfig) segmentPath(t time.Time) string {
	return filepath.Join(c.Dir, "segment_"+t.Format(segmentTimeLayout)+SegmentExtension)
}

// pruneSegments removes the oldest segments in dir until at most keep remain.
// Removing a file a reader still has mapped is safe, the mapping stays valid.
func pruneSegments(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	// Names embed the start time, so lexical order is age order
	var segments []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "segment_") && strings.HasSuffix(entry.Name(), SegmentExtension) {
			segments = append(segments, entry.Name())
		}
	}
	sort.Strings(segments)

	var errs []error
	for len(segments) > keep {
		if err := os.Remove(filepath.Join(dir, segments[0])); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		segments = segments[1:]
	}
	return errors.Join(errs...)
}

func (c RecorderConfig) binary() string {
	if c.Kind == RecorderRpicam {
		return "rpicam-vid"
	}
	return "ffmpeg"
}

func (c RecorderConfig) args(output string) []string {
	cam := c.Camera
	if c.Kind == RecorderRpicam {
		return []string{
			"-t", fmt.Sprintf("%d", c.SegmentLength*1000), // milliseconds
			"--width", fmt.Sprintf("%d", cam.Width),
			"--height", fmt.Sprintf("%d", cam.Height),
			"--framerate", fmt.Sprintf("%d", cam.FPS),
			"--codec", "mjpeg",
			"--nopreview",
			"-o", output,
		}
	}

	device := cam.Device
	if device == "" {
		device = "/dev/video0"
	}
	return []string{
		"-y",
		"-loglevel", "warning",
		"-f", "v4l2",
		"-input_format", "mjpeg",
		"-video_size", fmt.Sprintf("%dx%d", cam.Width, cam.Height),
		"-framerate", fmt.Sprintf("%d", cam.FPS),
		// Keep buffers small on memory constrained boards
		"-rtbufsize", "5M",
		"-thread_queue_size", "16",
		"-i", device,
		"-c:v", "mjpeg",
		"-q:v", fmt.Sprintf("%d", ffmpegMJPEGQuality),
		"-r", fmt.Sprintf("%d", cam.FPS),
		"-t", fmt.Sprintf("%d", c.SegmentLength),
		"-f", "mjpeg",
		output,
	}
}
