package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/metrics"
	"grid_adequacy/internal/models"
)

// ErrAlreadyLoaded is returned when Load is called after a successful load.
var ErrAlreadyLoaded = errors.New("frame set already loaded")

// FrameSource is the dataset boundary: rebuild, then list frames.
type FrameSource interface {
	Rebuild(ctx context.Context) error
	GetFrames(ctx context.Context) (models.FrameSet, error)
}

// FrameStore loads the session's frame set once and holds it read-only.
type FrameStore struct {
	src   FrameSource
	retry RetryPolicy
	log   *logger.Logger

	mu     sync.Mutex
	frames *models.FrameSet
}

func NewFrameStore(src FrameSource, retry RetryPolicy, log *logger.Logger) *FrameStore {
	if log == nil {
		log = logger.Nop()
	}
	return &FrameStore{src: src, retry: retry, log: log}
}

// Load runs rebuild then frame retrieval, each under the retry policy, and
// validates the result. A failed load may be attempted again.
func (s *FrameStore) Load(ctx context.Context) (*models.FrameSet, error) {
	s.mu.Lock()
	loaded := s.frames != nil
	s.mu.Unlock()
	if loaded {
		return nil, ErrAlreadyLoaded
	}

	fs, err := s.load(ctx)
	if err != nil {
		metrics.FrameLoadTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FrameLoadTotal.WithLabelValues("ok").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames != nil {
		return nil, ErrAlreadyLoaded
	}
	s.frames = fs
	return fs, nil
}

func (s *FrameStore) load(ctx context.Context) (*models.FrameSet, error) {
	attempt := 0
	if err := withRetry(ctx, s.retry, func() error {
		attempt++
		err := s.src.Rebuild(ctx)
		if err != nil {
			s.log.Warnw("rebuild_attempt_failed", "attempt", attempt, "err", err)
		}
		return err
	}); err != nil {
		return nil, fmt.Errorf("rebuild dataset: %w", err)
	}

	var fs models.FrameSet
	attempt = 0
	if err := withRetry(ctx, s.retry, func() error {
		attempt++
		var err error
		fs, err = s.src.GetFrames(ctx)
		if err != nil {
			s.log.Warnw("frames_attempt_failed", "attempt", attempt, "err", err)
			return err
		}
		return fs.Validate()
	}); err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}
	return &fs, nil
}

// Frames returns the loaded set, or nil before a successful Load.
func (s *FrameStore) Frames() *models.FrameSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
