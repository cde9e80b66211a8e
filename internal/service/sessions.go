package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/models"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRegistry tracks the engines of mounted sessions.
type SessionRegistry struct {
	deps EngineDeps

	mu       sync.RWMutex
	sessions map[string]*Engine
	wg       sync.WaitGroup
}

func NewSessionRegistry(deps EngineDeps) *SessionRegistry {
	return &SessionRegistry{deps: deps, sessions: make(map[string]*Engine)}
}

// Open mounts a new session on r and starts its loop. The session lives until
// ctx is cancelled or it is closed.
func (s *SessionRegistry) Open(ctx context.Context, r mapsurface.Renderer, notify func(models.Snapshot)) (Session, error) {
	id := uuid.NewString()
	e := NewEngine(id, s.deps, r, notify)

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		e.Run(ctx)
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}()
	return e, nil
}

func (s *SessionRegistry) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Snapshots lists every live session ordered by id.
func (s *SessionRegistry) Snapshots() []models.Snapshot {
	s.mu.RLock()
	out := make([]models.Snapshot, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.Snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Shutdown closes every session and waits for their loops to finish.
func (s *SessionRegistry) Shutdown() {
	s.mu.RLock()
	for _, e := range s.sessions {
		e.Close()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}
