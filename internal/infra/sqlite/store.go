package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

var _ domain.Store = (*DB)(nil)

// Atomic runs fn in one transaction. Nested calls join the outer one.
func (db *DB) Atomic(ctx context.Context, fn func(tx domain.Store) error) error {
	return db.inTx(ctx, func(tx *DB) error { return fn(tx) })
}

// ─── User Aggregates ────────────────────────────────────────────────────────

// LoadUserAggregate reads and decodes one aggregate. The revision column is
// authoritative over the document's copy.
func (db *DB) LoadUserAggregate(ctx context.Context, userID string) (*domain.UserAggregate, error) {
	var doc string
	var revision int64
	err := db.q.QueryRowContext(ctx,
		`SELECT document, revision FROM user_aggregates WHERE user_id = ?`, userID,
	).Scan(&doc, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load aggregate %s: %w", userID, err)
	}

	a, err := domain.DecodeAggregate([]byte(doc), userID, db.defaultNextLevelXP)
	if err != nil {
		return nil, err
	}
	a.Revision = revision
	return a, nil
}

// UserRevision reads the revision column alone, so callers can validate a
// cached copy without decoding the document.
func (db *DB) UserRevision(ctx context.Context, userID string) (int64, error) {
	var revision int64
	err := db.q.QueryRowContext(ctx,
		`SELECT revision FROM user_aggregates WHERE user_id = ?`, userID,
	).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load revision %s: %w", userID, err)
	}
	return revision, nil
}

// SaveUserAggregate writes a if the stored revision still equals a.Revision
// (0 means "must not exist yet"), then advances a.Revision.
func (db *DB) SaveUserAggregate(ctx context.Context, a *domain.UserAggregate) error {
	next := a.Revision + 1
	doc := *a
	doc.Revision = next
	doc.SchemaVersion = domain.CurrentSchemaVersion
	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode aggregate %s: %w", a.UserID, err)
	}

	var res sql.Result
	if a.Revision == 0 {
		res, err = db.q.ExecContext(ctx, `
			INSERT INTO user_aggregates (user_id, display_name, revision, schema_version, xp, level, document, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING
		`, a.UserID, a.DisplayName, next, domain.CurrentSchemaVersion, a.Rewards.XP, a.Rewards.Level,
			string(data), formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	} else {
		res, err = db.q.ExecContext(ctx, `
			UPDATE user_aggregates SET
				display_name   = ?,
				revision       = ?,
				schema_version = ?,
				xp             = ?,
				level          = ?,
				document       = ?,
				updated_at     = ?
			WHERE user_id = ? AND revision = ?
		`, a.DisplayName, next, domain.CurrentSchemaVersion, a.Rewards.XP, a.Rewards.Level,
			string(data), formatTime(a.UpdatedAt), a.UserID, a.Revision)
	}
	if err != nil {
		return fmt.Errorf("save aggregate %s: %w", a.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save aggregate %s: %w", a.UserID, err)
	}
	if n == 0 {
		return fmt.Errorf("save aggregate %s at revision %d: %w", a.UserID, a.Revision, domain.ErrConflict)
	}
	a.Revision = next
	return nil
}

// ListUserAggregates returns every aggregate ordered by user id.
func (db *DB) ListUserAggregates(ctx context.Context) ([]*domain.UserAggregate, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT user_id, document, revision FROM user_aggregates ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	var out []*domain.UserAggregate
	for rows.Next() {
		var userID, doc string
		var revision int64
		if err := rows.Scan(&userID, &doc, &revision); err != nil {
			return nil, fmt.Errorf("list aggregates: %w", err)
		}
		a, err := domain.DecodeAggregate([]byte(doc), userID, db.defaultNextLevelXP)
		if err != nil {
			return nil, err
		}
		a.Revision = revision
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountUserAggregates returns the number of stored users.
func (db *DB) CountUserAggregates(ctx context.Context) (int, error) {
	var n int
	err := db.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_aggregates`).Scan(&n)
	return n, err
}

// ─── Game Leaderboards ──────────────────────────────────────────────────────

// LoadGameLeaderboard returns the stored board. Unknown games yield an empty
// board, not an error.
func (db *DB) LoadGameLeaderboard(ctx context.Context, gameID string) (domain.GameLeaderboard, error) {
	board := domain.GameLeaderboard{GameID: gameID, Entries: []domain.GameScore{}}
	rows, err := db.q.QueryContext(ctx, `
		SELECT id, user_id, score, played_on, submitted_at
		FROM game_scores WHERE game_id = ?
		ORDER BY position
	`, gameID)
	if err != nil {
		return board, fmt.Errorf("load game leaderboard %s: %w", gameID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.GameScore
		var playedOn, submittedAt string
		if err := rows.Scan(&s.ID, &s.UserID, &s.Score, &playedOn, &submittedAt); err != nil {
			return board, fmt.Errorf("load game leaderboard %s: %w", gameID, err)
		}
		if s.Date, err = domain.ParseDate(playedOn); err != nil {
			return board, fmt.Errorf("game score %s: %w", s.ID, err)
		}
		if s.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
			return board, fmt.Errorf("game score %s: %w", s.ID, err)
		}
		board.Entries = append(board.Entries, s)
	}
	return board, rows.Err()
}

// SaveGameLeaderboard replaces the stored board with board's entries, in order.
func (db *DB) SaveGameLeaderboard(ctx context.Context, board domain.GameLeaderboard) error {
	if board.GameID == "" {
		return fmt.Errorf("save game leaderboard: empty game id")
	}
	return db.inTx(ctx, func(tx *DB) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM game_scores WHERE game_id = ?`, board.GameID); err != nil {
			return fmt.Errorf("save game leaderboard %s: %w", board.GameID, err)
		}
		for i, s := range board.Entries {
			_, err := tx.q.ExecContext(ctx, `
				INSERT INTO game_scores (id, game_id, user_id, score, played_on, submitted_at, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, s.ID, board.GameID, s.UserID, s.Score, s.Date.String(), formatTime(s.SubmittedAt), i)
			if err != nil {
				return fmt.Errorf("save game leaderboard %s: %w", board.GameID, err)
			}
		}
		return nil
	})
}

// GameIDs lists games that have at least one stored score.
func (db *DB) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := db.q.QueryContext(ctx, `SELECT DISTINCT game_id FROM game_scores ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
