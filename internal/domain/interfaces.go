package domain

import "context"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the engagement service depends on them.
// Implementations return ErrUserNotFound for missing aggregates and an empty
// board for unknown games.

// AggregateStore persists per-user aggregates.
type AggregateStore interface {
	LoadUserAggregate(ctx context.Context, userID string) (*UserAggregate, error)

	// UserRevision returns the stored revision without decoding the
	// document, or ErrUserNotFound.
	UserRevision(ctx context.Context, userID string) (int64, error)

	// SaveUserAggregate writes a, failing with ErrConflict if the stored
	// revision no longer matches a.Revision. On success a.Revision advances.
	SaveUserAggregate(ctx context.Context, a *UserAggregate) error

	ListUserAggregates(ctx context.Context) ([]*UserAggregate, error)
}

// GameBoardStore persists per-game leaderboards.
type GameBoardStore interface {
	LoadGameLeaderboard(ctx context.Context, gameID string) (GameLeaderboard, error)
	SaveGameLeaderboard(ctx context.Context, board GameLeaderboard) error
}

// Store is the full persistence collaborator.
type Store interface {
	AggregateStore
	GameBoardStore

	// Atomic runs fn against a store view whose writes commit together.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// Notifier receives observable side effects (level-ups, badge unlocks).
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
