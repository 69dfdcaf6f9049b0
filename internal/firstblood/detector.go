// Package firstblood detects the first solve of each challenge and announces it.
package firstblood

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btouchard/firstblood/internal/notify"
	"github.com/btouchard/firstblood/internal/store"
)

// Detector is a store.SolveObserver. A solve is first blood when, inside the
// transaction that inserted it, it is the only solve of its challenge.
type Detector struct {
	notifier notify.Notifier
}

// NewDetector creates a Detector announcing through n.
func NewDetector(n notify.Notifier) *Detector {
	return &Detector{notifier: n}
}

// SolveCreated decides first blood using the transactional reader r and, when
// it qualifies, returns the delivery to run after commit. Every failure is
// logged and ends in "no announcement"; nothing reaches the inserting caller.
func (d *Detector) SolveCreated(ctx context.Context, r store.Reader, s *store.SolveRecord) func(context.Context) {
	count, err := r.CountSolves(ctx, s.ChallengeID)
	if err != nil {
		slog.Warn("first blood check failed",
			"solve_id", s.ID,
			"challenge_id", s.ChallengeID,
			"error", err)
		return nil
	}
	if count != 1 {
		return nil
	}

	msg, err := render(ctx, r, s)
	if err != nil {
		slog.Warn("first blood lookup failed, skipping announcement",
			"solve_id", s.ID,
			"challenge_id", s.ChallengeID,
			"error", err)
		return nil
	}

	slog.Info("first blood",
		"solve_id", s.ID,
		"challenge_id", s.ChallengeID,
		"user_id", s.UserID,
		"team_id", s.TeamID)

	return func(ctx context.Context) {
		d.deliver(ctx, msg)
	}
}

func (d *Detector) deliver(ctx context.Context, msg string) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("first blood delivery panicked", "panic", p)
		}
	}()
	// The solve is committed; a client hanging up must not cancel the announcement.
	d.notifier.Notify(context.WithoutCancel(ctx), msg)
}

func render(ctx context.Context, r store.Reader, s *store.SolveRecord) (string, error) {
	challenge, err := r.GetChallenge(ctx, s.ChallengeID)
	if err != nil {
		return "", err
	}

	solver, err := solverName(ctx, r, s)
	if err != nil {
		return "", err
	}

	return Message(challenge.Name, solver), nil
}

// solverName resolves the team when the solve carries one, else the user.
func solverName(ctx context.Context, r store.Reader, s *store.SolveRecord) (string, error) {
	if s.TeamID != 0 {
		team, err := r.GetTeam(ctx, s.TeamID)
		if err != nil {
			return "", fmt.Errorf("resolving team: %w", err)
		}
		return team.Name, nil
	}

	user, err := r.GetUser(ctx, s.UserID)
	if err != nil {
		return "", fmt.Errorf("resolving user: %w", err)
	}
	return user.Name, nil
}
