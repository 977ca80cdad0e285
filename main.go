package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"camstream/camera"
	"camstream/stream"
)

func main() {
	// Load .env file if it exists
	godotenv.Load()

	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config file (default: XDG config directory)")
		port       = flag.Int("port", 0, "HTTP port, overrides the config file")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	// Initialize logger
	logger := NewLogger(*verbose)

	// Use XDG config directory if not specified
	if *configPath == "" {
		var err error
		*configPath, err = xdg.ConfigFile("camstream/config.json")
		if err != nil {
			*configPath = filepath.Join(os.ExpandEnv("$HOME"), ".config/camstream/config.json")
		}
	}

	// Create directories if they don't exist
	if err := os.MkdirAll(filepath.Dir(*configPath), 0755); err != nil {
		log.Fatalf("Failed to create config directory: %v", err)
	}

	// Load or create config
	config, err := LoadOrCreateConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ApplyEnv(); err != nil {
		logger.Fatalf("Failed to apply environment: %v", err)
	}
	if *port > 0 {
		config.Port = *port
	}
	if err := config.Validate(); err != nil {
		logger.Fatalf("Invalid config %s: %v", *configPath, err)
	}

	logger.Printf("Starting camera stream...")
	logger.Printf("Source: %s (%s) %dx%d @ %d FPS", config.Source, sourceTarget(config), config.Width, config.Height, config.FPS)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional external recorder feeding the mjpeg source
	var recorder *camera.Recorder
	if config.Recorder != "" {
		recorder, err = camera.NewRecorder(camera.RecorderConfig{
			Kind:          config.Recorder,
			Camera:        config.CameraConfig(),
			Dir:           config.MJPEGPath,
			SegmentLength: config.SegmentLengthS,
			KeepSegments:  config.KeepSegments,
		}, logger)
		if err != nil {
			logger.Warnf("Recorder disabled: %v", err)
		} else {
			go func() {
				if err := recorder.Run(ctx); err != nil {
					logger.Warnf("Recorder stopped: %v", err)
				}
			}()
		}
	}

	source, err := camera.NewSource(config.Source, config.CameraConfig(), config.MJPEGPath, logger)
	if err != nil {
		logger.Fatalf("Failed to create frame source: %v", err)
	}

	server := stream.NewServer(stream.ImageEncoder{StreamWidth: config.StreamWidth}, logger)
	if err := server.Start(config.Port); err != nil {
		logger.Fatalf("%v", err)
	}

	var opts camera.Options
	if config.EmbedTimestamp {
		opts.Overlay = camera.NewOverlay()
	}

	// Start capture in background
	captureDone := make(chan error, 1)
	go func() {
		captureDone <- camera.Run(ctx, source, server, logger, opts)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-captureDone:
		logger.Printf("Capture stopped: %v", err)
		captureDone = nil
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)
	}

	// Cleanup
	logger.Printf("Shutting down...")
	cancel()
	if recorder != nil {
		recorder.Stop()
	}
	server.Stop()

	if captureDone != nil {
		select {
		case <-captureDone:
		case <-time.After(CaptureStopTimeout):
			logger.Warnf("Capture did not stop within %s", CaptureStopTimeout)
		}
	}
}

func sourceTarget(c *Config) string {
	if c.Source == camera.SourceMJPEG {
		return c.MJPEGPath
	}
	if c.Source == camera.SourcePattern {
		return "synthetic"
	}
	return c.Device
}
