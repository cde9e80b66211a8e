package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/models"
	"grid_adequacy/internal/repository"
)

const (
	journalBuffer     = 256
	journalFlushLimit = 2 * time.Second
)

// LogFilter narrows the journal listing. Zero values do not filter.
type LogFilter struct {
	From      time.Time // inclusive
	To        time.Time // inclusive
	Type      string
	SessionID string
	Limit     int
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// EventLogService is the session journal. Record never blocks the caller;
// Run persists queued events until its context ends.
type EventLogService struct {
	repo  repository.Journal
	log   *logger.Logger
	queue chan models.SessionEvent
}

func NewEventLogService(repo repository.Journal, log *logger.Logger) *EventLogService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventLogService{repo: repo, log: log, queue: make(chan models.SessionEvent, journalBuffer)}
}

// Record queues e for persistence, dropping it when the queue is full.
func (s *EventLogService) Record(e models.SessionEvent) {
	select {
	case s.queue <- e:
	default:
		s.log.Warnw("journal_event_dropped", "session", e.SessionID, "type", e.Type)
	}
}

// Run drains the queue into the repository. Events still queued when ctx
// ends are flushed with a short deadline.
func (s *EventLogService) Run(ctx context.Context) {
	for {
		select {
		case e := <-s.queue:
			s.persist(ctx, e)
		case <-ctx.Done():
			s.flush()
			return
		}
	}
}

func (s *EventLogService) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), journalFlushLimit)
	defer cancel()
	for {
		select {
		case e := <-s.queue:
			s.persist(ctx, e)
		default:
			return
		}
	}
}

func (s *EventLogService) persist(ctx context.Context, e models.SessionEvent) {
	if err := s.repo.Append(ctx, e); err != nil {
		s.log.Errorw("journal_append_failed", "session", e.SessionID, "type", e.Type, "err", err)
	}
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter turns a LogFilter into a repository query.
func normalizeAndValidateFilter(f LogFilter) (repository.JournalQuery, error) {
	q := repository.JournalQuery{
		From:      normalizeToUTC(f.From),
		To:        normalizeToUTC(f.To),
		Type:      normalizeEventType(f.Type),
		SessionID: strings.TrimSpace(f.SessionID),
		Limit:     f.Limit,
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return repository.JournalQuery{}, errInvalidTimeRange
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.SessionEvent, error) {
	q, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, q)
}
