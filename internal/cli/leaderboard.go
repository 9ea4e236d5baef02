package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(gamesCmd)

	leaderboardCmd.Flags().Int("page", 1, "Page number (1-based)")
	leaderboardCmd.Flags().Int("size", 20, "Rows per page")
	leaderboardCmd.Flags().Int("limit", 0, "Rank only the best N users (0 = all)")
	leaderboardCmd.Flags().String("game", "", "Show a game's top scores instead")
}

// ─── leaderboard ────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [CATEGORY]",
	Short: "Show a leaderboard",
	Long: `Rank every stored user on one category: overall, xp, level, streak,
combined, journal, tools, community, funzone, badges or medals (default
overall).
With --game, print that game's top-K board.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")
	limit, _ := cmd.Flags().GetInt("limit")
	game, _ := cmd.Flags().GetString("game")

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	out := cmd.OutOrStdout()
	if game != "" {
		board, err := d.Service.GameLeaderboard(cmd.Context(), game)
		if err != nil {
			return err
		}
		if len(board.Entries) == 0 {
			fmt.Fprintf(out, "No scores for %s yet.\n", game)
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tUSER\tSCORE\tDATE")
		for i, e := range board.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%g\t%s\n", i+1, e.UserID, e.Score, e.Date)
		}
		return tw.Flush()
	}

	category := string(domain.BoardOverall)
	if len(args) == 1 {
		category = args[0]
	}
	view, err := d.Service.Leaderboard(cmd.Context(), category, limit)
	if err != nil {
		return err
	}
	p, err := view.Page(page, size)
	if err != nil {
		return err
	}
	if p.Total == 0 {
		fmt.Fprintln(out, "No users yet.")
		return nil
	}

	fmt.Fprintf(out, "%s leaderboard · page %d/%d · %d users\n", strings.ToUpper(category[:1])+category[1:], p.Page, p.Pages, p.Total)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tLEVEL\tVALUE")
	for _, e := range p.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g\n", rankLabel(e.Rank), e.DisplayName, e.Level, e.MetricValue)
	}
	return tw.Flush()
}

func rankLabel(rank int) string {
	switch rank {
	case 1:
		return "🥇 1"
	case 2:
		return "🥈 2"
	case 3:
		return "🥉 3"
	}
	return fmt.Sprintf("   %d", rank)
}

// ─── games ──────────────────────────────────────────────────────────────────

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List the game catalog",
	Args:  cobra.NoArgs,
	RunE:  runGames,
}

func runGames(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	scored, err := d.DB.GameIDs(cmd.Context())
	if err != nil {
		return err
	}
	hasScores := make(map[string]bool, len(scored))
	for _, id := range scored {
		hasScores[id] = true
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSCORES")
	for _, g := range d.Service.Games().Games() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", g.ID, g.Name, g.Status, hasScores[g.ID])
		delete(hasScores, g.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, id := range scored {
		if hasScores[id] {
			fmt.Fprintf(out, "⚠️  %s has stored scores but is not in the catalog\n", id)
		}
	}
	return nil
}
