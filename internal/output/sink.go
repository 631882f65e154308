// Package output renders and serializes initializer results and fans debug output out
// to observers.
package output

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/vioinit/internal/frame"
)

// Sink observes the initializer. Calls are made synchronously from the tracking goroutine.
type Sink interface {
	// PushLiveFrame is called with every frame handed to the tracker.
	PushLiveFrame(f *frame.Frame)

	// NeedPushDepthImage reports whether the sink wants debug depth images; rendering
	// is skipped when no sink does.
	NeedPushDepthImage() bool

	// PushDepthImage delivers the rendered debug depth image. The image must not be
	// retained after the call returns.
	PushDepthImage(img *image.NRGBA)
}

// NoOpSink implements Sink but does nothing.
type NoOpSink struct{}

func (NoOpSink) PushLiveFrame(*frame.Frame)   {}
func (NoOpSink) NeedPushDepthImage() bool     { return false }
func (NoOpSink) PushDepthImage(*image.NRGBA) {}

// PNGSink writes every depth image to Dir as depth_000000.png, depth_000001.png, ...
type PNGSink struct {
	Dir    string
	Logger *slog.Logger

	mu     sync.Mutex
	frames int
	images int
	err    error
}

// NewPNGSink creates dir if needed and returns a sink writing into it.
func NewPNGSink(dir string, logger *slog.Logger) (*PNGSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create depth image directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PNGSink{Dir: dir, Logger: logger}, nil
}

// PushLiveFrame counts frames.
func (s *PNGSink) PushLiveFrame(*frame.Frame) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

// NeedPushDepthImage always returns true.
func (s *PNGSink) NeedPushDepthImage() bool { return true }

// PushDepthImage saves img; the first write error is kept and returned by Err.
func (s *PNGSink) PushDepthImage(img *image.NRGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.Dir, fmt.Sprintf("depth_%06d.png", s.images))
	if err := imaging.Save(img, path); err != nil {
		if s.err == nil {
			s.err = fmt.Errorf("save depth image %s: %w", path, err)
		}
		s.Logger.Warn("failed to write depth image", "path", path, "error", err)
		return
	}
	s.images++
	s.Logger.Debug("wrote depth image", "path", path, "frame", s.frames)
}

// Written returns the number of images saved so far.
func (s *PNGSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images
}

// Err returns the first write error, if any.
func (s *PNGSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
