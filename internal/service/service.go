package service

import (
	"context"
	"time"

	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/models"
	"grid_adequacy/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Session is one mounted playback engine.
type Session interface {
	ID() string
	TogglePlay(ctx context.Context) error
	Scrub(ctx context.Context, index int) error
	Retry(ctx context.Context) error
	SurfaceReady(ctx context.Context) error
	Snapshot() models.Snapshot
	Close()
	Done() <-chan struct{}
}

// Sessions creates and looks up sessions.
type Sessions interface {
	Open(ctx context.Context, r mapsurface.Renderer, notify func(models.Snapshot)) (Session, error)
	Get(id string) (Session, error)
	Snapshots() []models.Snapshot
	Shutdown()
}

// EventLog is the append-only session journal.
type EventLog interface {
	Record(e models.SessionEvent)
	List(ctx context.Context, f LogFilter) ([]models.SessionEvent, error)
	Run(ctx context.Context)
}

type Service struct {
	Sessions
	EventLog
	Authorization
}

// Options carries what NewService needs beyond the repositories.
type Options struct {
	Engine     EngineDeps
	SigningKey string
	TokenTTL   time.Duration
	Log        *logger.Logger
}

func NewService(repos *repository.Repository, opts Options) (*Service, error) {
	auth, err := NewAuthService(repos.Operators, opts.SigningKey, opts.TokenTTL)
	if err != nil {
		return nil, err
	}
	journal := NewEventLogService(repos.Journal, opts.Log.Named("journal"))

	deps := opts.Engine
	deps.Journal = journal
	if deps.Log == nil {
		deps.Log = opts.Log.Named("session")
	}
	return &Service{
		Sessions:      NewSessionRegistry(deps),
		EventLog:      journal,
		Authorization: auth,
	}, nil
}
