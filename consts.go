package main

import "time"

// =============================================================================
// Default Configuration Values
// =============================================================================

const (
	// Capture defaults
	DefaultSource       = "v4l2"
	DefaultCameraDevice = "/dev/video0"
	DefaultVideoWidth   = 1280
	DefaultVideoHeight  = 720
	DefaultVideoFPS     = 30

	// Recorder defaults
	DefaultSegmentLengthS = 60 // seconds, each segment is a new file
	DefaultSegmentDir     = "camstream/segments"

	// Streaming defaults
	DefaultStreamWidth    = 0 // 0 = stream at capture resolution
	DefaultEmbedTimestamp = false
)

// =============================================================================
// Environment Overrides
// =============================================================================

const (
	EnvPort   = "CAMSTREAM_PORT"
	EnvSource = "CAMSTREAM_SOURCE"
	EnvDevice = "CAMSTREAM_DEVICE"
)

// =============================================================================
// Shutdown
// =============================================================================

const (
	// Max time to wait for the capture loop to release the device
	CaptureStopTimeout = 3 * time.Second
)
