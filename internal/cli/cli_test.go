package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// run executes the root command against an isolated data dir and returns
// its stdout. Flags are reset first because the command tree is global.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{
		"--config", filepath.Join(dir, "config.toml"),
		"--data-dir", dir,
		"--log-level", "error",
	}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestActivityAndLeaderboard(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "activity", "alice", "journal", "--date", "2026-03-10")
	if err != nil {
		t.Fatalf("activity: %v\n%s", err, out)
	}
	if !strings.Contains(out, "journal streak: 1 day(s)") || !strings.Contains(out, "+20 XP") {
		t.Errorf("unexpected activity output:\n%s", out)
	}

	out, err = run(t, dir, "activity", "alice", "journal", "--date", "2026-03-10")
	if err != nil {
		t.Fatalf("repeat activity: %v", err)
	}
	if !strings.Contains(out, "unchanged") {
		t.Errorf("repeat should leave streak unchanged:\n%s", out)
	}

	if _, err := run(t, dir, "activity", "bob", "login", "--date", "2026-03-10"); err != nil {
		t.Fatalf("activity bob: %v", err)
	}

	out, err = run(t, dir, "leaderboard", "xp")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	alice := strings.Index(out, "alice")
	bob := strings.Index(out, "bob")
	if alice < 0 || bob < 0 || alice > bob {
		t.Errorf("alice (20 XP) should rank above bob (10 XP):\n%s", out)
	}
	if !strings.Contains(out, "2 users") {
		t.Errorf("missing user count:\n%s", out)
	}

	if _, err := run(t, dir, "leaderboard", "bogus"); err == nil {
		t.Error("expected error for unknown leaderboard")
	}
	if _, err := run(t, dir, "activity", "alice", "chess"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestStreakPurchases(t *testing.T) {
	dir := t.TempDir()
	cfg := "[streaks]\nrecovery_cost = 1\nfreeze_cost = 1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	// Two days, a two-day gap, then back: the run of 2 is broken.
	for _, day := range []string{"2026-03-10", "2026-03-11", "2026-03-14"} {
		if out, err := run(t, dir, "activity", "alice", "login", "--date", day); err != nil {
			t.Fatalf("activity %s: %v\n%s", day, err, out)
		}
	}

	out, err := run(t, dir, "streak", "recover", "alice", "login")
	if err != nil {
		t.Fatalf("recover: %v\n%s", err, out)
	}
	if !strings.Contains(out, "login streak: 3 day(s)") || !strings.Contains(out, "-1 coins") {
		t.Errorf("unexpected recover output:\n%s", out)
	}
	if _, err := run(t, dir, "streak", "recover", "alice", "login"); err == nil {
		t.Error("second recovery should fail")
	}

	out, err = run(t, dir, "streak", "freeze", "alice", "login")
	if err != nil {
		t.Fatalf("freeze: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 freeze(s)") {
		t.Errorf("unexpected freeze output:\n%s", out)
	}
}

func TestScoreAndGames(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "score", "memory-match", "alice", "300")
	if err != nil {
		t.Fatalf("score: %v\n%s", err, out)
	}
	if !strings.Contains(out, "made the memory-match top 5") {
		t.Errorf("unexpected score output:\n%s", out)
	}

	out, err = run(t, dir, "leaderboard", "--game", "memory-match")
	if err != nil {
		t.Fatalf("game leaderboard: %v", err)
	}
	if !strings.Contains(out, "alice") || !strings.Contains(out, "300") {
		t.Errorf("board missing alice's score:\n%s", out)
	}

	out, err = run(t, dir, "games")
	if err != nil {
		t.Fatalf("games: %v", err)
	}
	if !strings.Contains(out, "memory-match") || !strings.Contains(out, "true") {
		t.Errorf("games output:\n%s", out)
	}

	if _, err := run(t, dir, "score", "memory-match", "alice", "lots"); err == nil {
		t.Error("expected error for non-numeric score")
	}
	if _, err := run(t, dir, "score", "pong", "alice", "1"); err == nil {
		t.Error("expected error for unknown game")
	}
}

func TestImportLegacyExport(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "export.json")
	legacy := `{
  "users": {
    "uid-1": {
      "username": "Mira",
      "streaks": {
        "login": {"current": 4, "longest": 9, "lastActive": "2026-03-09", "history": {"2026-03-08": true, "2026-03-09": true}}
      },
      "rewards": {"coins": 12, "points": 340, "level": 3, "xp": 340, "currentTitle": "Novice", "badges": ["rising-star"]}
    },
    "uid-2": {"username": "Teo"}
  }
}`
	if err := os.WriteFile(export, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, dir, "import", export, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Decoded 2 of 2") {
		t.Errorf("dry run output:\n%s", out)
	}
	if out, _ := run(t, dir, "leaderboard"); !strings.Contains(out, "No users yet") {
		t.Errorf("dry run wrote users:\n%s", out)
	}

	out, err = run(t, dir, "import", export)
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 2 of 2") || !strings.Contains(out, "Mira") {
		t.Errorf("import output:\n%s", out)
	}

	// Re-importing overwrites instead of conflicting.
	if _, err := run(t, dir, "import", export); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	out, err = run(t, dir, "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var got struct {
		Users map[string]struct {
			DisplayName string `json:"display_name"`
			Rewards     struct {
				XP    int64 `json:"xp"`
				Level int   `json:"level"`
			} `json:"rewards"`
			Streaks map[string]struct {
				Current int `json:"current"`
				Longest int `json:"longest"`
			} `json:"streaks"`
		} `json:"users"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode export: %v\n%s", err, out)
	}
	mira := got.Users["uid-1"]
	if mira.DisplayName != "Mira" || mira.Rewards.XP != 340 || mira.Rewards.Level != 3 {
		t.Errorf("uid-1 = %+v", mira)
	}
	if s := mira.Streaks["login"]; s.Current != 4 || s.Longest != 9 {
		t.Errorf("uid-1 login streak = %+v", s)
	}
	if _, ok := got.Users["uid-2"]; !ok {
		t.Error("uid-2 missing from export")
	}
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "[api]") || !strings.Contains(out, dir) {
		t.Errorf("config output missing sections or data dir override:\n%s", out)
	}

	out, err = run(t, dir, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := run(t, dir, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := run(t, dir, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	// The written file loads back cleanly.
	if _, err := run(t, dir, "config"); err != nil {
		t.Errorf("config after init: %v", err)
	}
}
