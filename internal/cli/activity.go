package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eduverse-ninja/dojo/internal/app/engagement"
	"github.com/eduverse-ninja/dojo/internal/domain"
)

func init() {
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(streakCmd)
	streakCmd.AddCommand(streakRecoverCmd, streakFreezeCmd)

	activityCmd.Flags().String("date", "", "Activity date YYYY-MM-DD (default today, UTC)")
	activityCmd.Flags().Float64("delta", 1, "Amount added to the category counter")
	activityCmd.Flags().String("game", "", "Game id (required for the game category)")
}

// ─── activity ───────────────────────────────────────────────────────────────

var activityCmd = &cobra.Command{
	Use:   "activity USER CATEGORY",
	Short: "Record an activity event",
	Long: `Record one activity for a user. CATEGORY is one of login, tools, journal,
community, funzone or game. The first activity of a day in a category
extends its streak and awards XP; later ones only add to the counter.`,
	Args: cobra.ExactArgs(2),
	RunE: runActivity,
}

func runActivity(cmd *cobra.Command, args []string) error {
	dateStr, _ := cmd.Flags().GetString("date")
	delta, _ := cmd.Flags().GetFloat64("delta")
	game, _ := cmd.Flags().GetString("game")

	date := domain.DateOf(time.Now().UTC())
	if dateStr != "" {
		d, err := domain.ParseDate(dateStr)
		if err != nil {
			return err
		}
		date = d
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Service.RecordActivity(cmd.Context(), domain.ActivityEvent{
		UserID:      args[0],
		Category:    domain.Category(args[1]),
		OccurredOn:  date,
		MetricDelta: delta,
		GameID:      game,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.StreakChanged {
		fmt.Fprintf(out, "🔥 %s streak: %d day(s) (longest %d)\n", args[1], res.Streak.Current, res.Streak.Longest)
	} else {
		fmt.Fprintf(out, "%s streak unchanged at %d day(s)\n", args[1], res.Streak.Current)
	}
	printOutcome(cmd, res.Outcome, res.Rewards)
	return nil
}

// ─── score ──────────────────────────────────────────────────────────────────

var scoreCmd = &cobra.Command{
	Use:   "score GAME USER SCORE",
	Short: "Submit a finished game score",
	Args:  cobra.ExactArgs(3),
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	score, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid score %q", args[2])
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Service.SubmitScore(cmd.Context(), args[0], args[1], score)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Kept {
		fmt.Fprintf(out, "🏆 %g made the %s top %d\n", score, args[0], d.Service.Games().TopK())
	} else {
		fmt.Fprintf(out, "%g did not make the %s top %d\n", score, args[0], d.Service.Games().TopK())
	}
	if res.Medal != "" {
		fmt.Fprintf(out, "🏅 %s medal\n", res.Medal)
	}
	printOutcome(cmd, res.Outcome, res.Rewards)
	return nil
}

// ─── streak ─────────────────────────────────────────────────────────────────

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Spend coins on a streak",
}

var streakRecoverCmd = &cobra.Command{
	Use:   "recover USER CATEGORY",
	Short: "Buy back the run lost at the last streak reset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStreakPurchase(cmd, args, (*engagement.Service).RecoverStreak)
	},
}

var streakFreezeCmd = &cobra.Command{
	Use:   "freeze USER CATEGORY",
	Short: "Buy a freeze that covers one missed day",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStreakPurchase(cmd, args, (*engagement.Service).BuyStreakFreeze)
	},
}

type streakPurchase func(*engagement.Service, context.Context, string, domain.Category) (engagement.StreakPurchase, error)

func runStreakPurchase(cmd *cobra.Command, args []string, buy streakPurchase) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := buy(d.Service, cmd.Context(), args[0], domain.Category(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🔥 %s streak: %d day(s) · %d freeze(s) · -%d coins · %d coins left\n",
		res.Category, res.Streak.Current, res.Streak.Freezes, res.Cost, res.Rewards.Coins)
	return nil
}

func printOutcome(cmd *cobra.Command, o engagement.Outcome, r domain.RewardsState) {
	out := cmd.OutOrStdout()
	if o.XPAwarded > 0 {
		fmt.Fprintf(out, "+%d XP, +%d coins, +%d points\n", o.XPAwarded, o.CoinsAwarded, o.PointsAwarded)
	}
	if o.LeveledUp {
		fmt.Fprintf(out, "⬆️  Level %d → %d\n", o.FromLevel, o.ToLevel)
	}
	for _, b := range o.NewBadges {
		fmt.Fprintf(out, "🎖  Badge unlocked: %s\n", b)
	}
	for _, t := range o.NewTitles {
		fmt.Fprintf(out, "✨ Title unlocked: %s\n", t)
	}
	fmt.Fprintf(out, "Level %d · %d/%d XP · %d coins · %d points\n", r.Level, r.XP, r.NextLevelXP, r.Coins, r.Points)
}
