package engagement

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

// ─── Game Score Submission ──────────────────────────────────────────────────
// Each game keeps only its best K scores, ordered by score desc then
// submission time asc (earlier wins ties). Duplicate scores are kept as
// separate rows.

// GameConfig configures the pipeline.
type GameConfig struct {
	TopK           int              // entries kept per game (default 5)
	DefaultXPRatio float64          // XP per score point when a game sets none (default 0.1)
	Catalog        []domain.GameDef // known games; empty accepts any game id
}

// DefaultGameConfig returns the production defaults.
func DefaultGameConfig() GameConfig {
	return GameConfig{TopK: 5, DefaultXPRatio: 0.1}
}

// GamePipeline validates and applies score submissions.
type GamePipeline struct {
	topK    int
	ratio   float64
	catalog map[string]domain.GameDef
	order   []string
}

// NewGamePipeline creates a pipeline.
func NewGamePipeline(cfg GameConfig) *GamePipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultGameConfig().TopK
	}
	if cfg.DefaultXPRatio <= 0 {
		cfg.DefaultXPRatio = DefaultGameConfig().DefaultXPRatio
	}
	p := &GamePipeline{
		topK:    cfg.TopK,
		ratio:   cfg.DefaultXPRatio,
		catalog: make(map[string]domain.GameDef, len(cfg.Catalog)),
	}
	for _, g := range cfg.Catalog {
		if g.Status == "" {
			g.Status = domain.GameActive
		}
		if _, dup := p.catalog[g.ID]; !dup {
			p.order = append(p.order, g.ID)
		}
		p.catalog[g.ID] = g
	}
	return p
}

// TopK returns the per-game board size.
func (p *GamePipeline) TopK() int { return p.topK }

// Games returns the catalog in configuration order.
func (p *GamePipeline) Games() []domain.GameDef {
	out := make([]domain.GameDef, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.catalog[id])
	}
	return out
}

// Validate checks a submission before anything is loaded or written.
func (p *GamePipeline) Validate(gameID, userID string, score float64) error {
	if gameID == "" {
		return domain.Invalid("gameId", "must not be empty")
	}
	if userID == "" {
		return domain.Invalid("userId", "must not be empty")
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return domain.Invalid("score", "must be finite")
	}
	if score < 0 {
		return domain.Invalid("score", "must not be negative, got %v", score)
	}
	if len(p.catalog) == 0 {
		return nil
	}
	g, ok := p.catalog[gameID]
	if !ok {
		return domain.Invalid("gameId", "unknown game %q", gameID)
	}
	if g.Status == domain.GameMaintenance {
		return domain.Invalid("gameId", "game %q is under maintenance", gameID)
	}
	return nil
}

// Insert adds entry to board and keeps the best K. The input board is not
// modified. kept reports whether entry survived the cut.
func (p *GamePipeline) Insert(board domain.GameLeaderboard, entry domain.GameScore) (next domain.GameLeaderboard, kept bool) {
	next = board.Clone()
	next.Entries = append(next.Entries, entry)
	slices.SortStableFunc(next.Entries, compareScores)
	if len(next.Entries) > p.topK {
		next.Entries = next.Entries[:p.topK]
	}
	kept = slices.ContainsFunc(next.Entries, func(s domain.GameScore) bool { return s.ID == entry.ID })
	return next, kept
}

// MedalFor reports the podium medal held by entryID on board, if it finished
// in the top three.
func MedalFor(board domain.GameLeaderboard, entryID string) (domain.MedalKind, bool) {
	for i, e := range board.Entries {
		if i >= len(domain.PodiumMedals) {
			break
		}
		if e.ID == entryID {
			return domain.PodiumMedals[i], true
		}
	}
	return "", false
}

func compareScores(a, b domain.GameScore) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return a.SubmittedAt.Compare(b.SubmittedAt)
}

// XPFor converts a score into XP using the game's ratio, rounding down.
func (p *GamePipeline) XPFor(gameID string, score float64) int64 {
	ratio := p.ratio
	if g, ok := p.catalog[gameID]; ok && g.XPRatio > 0 {
		ratio = g.XPRatio
	}
	xp := math.Floor(score * ratio)
	if xp >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(xp)
}

// NewEntry builds the row for a submission at now.
func NewEntry(id, userID string, score float64, now time.Time) domain.GameScore {
	return domain.GameScore{
		ID:          id,
		UserID:      userID,
		Score:       score,
		Date:        domain.DateOf(now),
		SubmittedAt: now,
	}
}
