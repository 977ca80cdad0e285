package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"

	"camstream/camera"
	"camstream/stream"
)

type Config struct {
	Port           int    `json:"port"`
	Source         string `json:"source"` // v4l2, mjpeg or pattern
	Device         string `json:"device"` // e.g., /dev/video0, /dev/video1
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FPS            int    `json:"fps"`
	MJPEGPath      string `json:"mjpeg_path"`       // file or segment directory tailed by the mjpeg source
	Recorder       string `json:"recorder"`         // "", ffmpeg or rpicam, writes into mjpeg_path
	SegmentLengthS int    `json:"segment_length_s"` // seconds
	KeepSegments   int    `json:"keep_segments"`    // oldest segments beyond this are removed
	StreamWidth    int    `json:"stream_width"`     // 0 = capture width
	EmbedTimestamp bool   `json:"embed_timestamp"`
}

func DefaultConfig() *Config {
	// Use XDG state directory for recorder segments
	segmentDir, err := xdg.StateFile(DefaultSegmentDir)
	if err != nil {
		// Fallback if XDG fails
		homeDir, _ := os.UserHomeDir()
		segmentDir = filepath.Join(homeDir, ".local/state", DefaultSegmentDir)
	}

	return &Config{
		Port:           stream.DefaultPort,
		Source:         DefaultSource,
		Device:         DefaultCameraDevice,
		Width:          DefaultVideoWidth,
		Height:         DefaultVideoHeight,
		FPS:            DefaultVideoFPS,
		MJPEGPath:      segmentDir,
		SegmentLengthS: DefaultSegmentLengthS,
		KeepSegments:   camera.DefaultKeepSegments,
		StreamWidth:    DefaultStreamWidth,
		EmbedTimestamp: DefaultEmbedTimestamp,
	}
}

func LoadOrCreateConfig(configPath string) (*Config, error) {
	// If config exists, load it
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		// Start from defaults so missing fields keep their default
		config := DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		return config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(configPath, config); err != nil {
		return nil, err
	}

	fmt.Printf("Created default config at %s\n", configPath)
	return config, nil
}

func SaveConfig(configPath string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides config fields from CAMSTREAM_* variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v := os.Getenv(EnvSource); v != "" {
		c.Source = v
	}
	if v := os.Getenv(EnvDevice); v != "" {
		c.Device = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Source {
	case camera.SourceV4L2, camera.SourceMJPEG, camera.SourcePattern:
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	switch c.Recorder {
	case "", camera.RecorderFFmpeg, camera.RecorderRpicam:
	default:
		return fmt.Errorf("unknown recorder %q", c.Recorder)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("invalid fps %d", c.FPS)
	}
	if c.Recorder != "" && c.KeepSegments < 2 {
		return fmt.Errorf("keep_segments must be at least 2, got %d", c.KeepSegments)
	}
	if c.StreamWidth < 0 {
		return fmt.Errorf("invalid stream width %d", c.StreamWidth)
	}
	return nil
}

// CameraConfig is the capture part of the config
func (c *Config) CameraConfig() camera.Config {
	return camera.Config{
		Device: c.Device,
		Width:  c.Width,
		Height: c.Height,
		FPS:    c.FPS,
	}
}
