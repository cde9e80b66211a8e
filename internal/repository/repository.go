package repository

import (
	"context"
	"database/sql"
	"time"

	"grid_adequacy/internal/models"
)

type Operators interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.Operator, error)
}

// JournalQuery narrows a journal listing. Zero values do not filter.
type JournalQuery struct {
	From      time.Time
	To        time.Time
	Type      string
	SessionID string
	Limit     int
}

type Journal interface {
	Append(ctx context.Context, e models.SessionEvent) error
	List(ctx context.Context, q JournalQuery) ([]models.SessionEvent, error)
}

type Repository struct {
	Journal   Journal
	Operators Operators
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Journal:   NewJournalSQLite(db),
		Operators: NewOperatorRepository(db),
	}
}
