package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for firstblood.
// Defined at the consumer side per Go conventions.
type Store interface {
	Reader

	// Platform entities
	CreateChallenge(ctx context.Context, c *ChallengeRecord) error
	CreateUser(ctx context.Context, u *UserRecord) error
	CreateTeam(ctx context.Context, t *TeamRecord) error

	// Solves
	CreateSolve(ctx context.Context, s *SolveRecord) error
	OnSolveCreated(o SolveObserver)
	ListFirstBloods(ctx context.Context) ([]FirstBloodRecord, error)

	// Key-value configuration
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	Close() error
}

// Reader is the read side used by solve observers. Inside an observer it is
// bound to the transaction that inserted the solve, so counts include the
// uncommitted row and exclude rows other writers have not committed.
type Reader interface {
	CountSolves(ctx context.Context, challengeID int64) (int, error)
	GetChallenge(ctx context.Context, id int64) (*ChallengeRecord, error)
	GetUser(ctx context.Context, id int64) (*UserRecord, error)
	GetTeam(ctx context.Context, id int64) (*TeamRecord, error)
}

// SolveObserver reacts to a newly inserted solve.
//
// SolveCreated runs synchronously inside the inserting transaction and must
// not write. It cannot fail the insert. The returned function, if non-nil,
// runs after the transaction commits, on the caller's goroutine.
type SolveObserver interface {
	SolveCreated(ctx context.Context, r Reader, s *SolveRecord) func(context.Context)
}

// ChallengeRecord represents a persisted challenge.
type ChallengeRecord struct {
	ID        int64
	Name      string
	Category  string
	CreatedAt time.Time
}

// UserRecord represents a persisted user account.
type UserRecord struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// TeamRecord represents a persisted team.
type TeamRecord struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// SolveRecord is one successful submission. TeamID is 0 for solo solves.
type SolveRecord struct {
	ID          int64
	ChallengeID int64
	UserID      int64
	TeamID      int64
	CreatedAt   time.Time
}

// FirstBloodRecord is the earliest solve of a challenge with display names resolved.
type FirstBloodRecord struct {
	SolveID       int64
	ChallengeID   int64
	ChallengeName string
	UserID        int64
	TeamID        int64
	SolverName    string
	SolvedAt      time.Time
}
