package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

// exportFile is the realtime-database export layout: {"users": {uid: doc}}.
// Import accepts legacy and current documents; export writes current ones.
type exportFile struct {
	Users map[string]json.RawMessage `json:"users"`
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().Bool("dry-run", false, "Decode and report without writing")
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
}

// ─── import ─────────────────────────────────────────────────────────────────

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import user records from a JSON export",
	Long: `Import users from an export shaped {"users": {"<uid>": {...}}}. Records
written by the old web client (camelCase streaks, rewards and username) are
upgraded to the current schema. Existing users are overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	var file exportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse export: %w", err)
	}
	if len(file.Users) == 0 {
		return fmt.Errorf("export %s has no users", args[0])
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	nextLevelXP := d.Service.Rewards().Curve().Threshold(2)
	uids := make([]string, 0, len(file.Users))
	for uid := range file.Users {
		uids = append(uids, uid)
	}
	slices.Sort(uids)

	out := cmd.OutOrStdout()
	var failed int
	for _, uid := range uids {
		agg, err := domain.DecodeAggregate(file.Users[uid], uid, nextLevelXP)
		if err == nil && !dryRun {
			err = d.Service.Import(cmd.Context(), agg)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "❌ %s: %v\n", uid, err)
			continue
		}
		fmt.Fprintf(out, "✅ %s (%s) level %d, %d XP\n", uid, agg.Name(), agg.Rewards.Level, agg.Rewards.XP)
	}

	verb := "Imported"
	if dryRun {
		verb = "Decoded"
	}
	fmt.Fprintf(out, "%s %d of %d user(s).\n", verb, len(uids)-failed, len(uids))
	if failed > 0 {
		return fmt.Errorf("%d user(s) failed", failed)
	}
	return nil
}

// ─── export ─────────────────────────────────────────────────────────────────

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every user record as JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	aggs, err := d.DB.ListUserAggregates(cmd.Context())
	if err != nil {
		return err
	}
	file := struct {
		Users map[string]*domain.UserAggregate `json:"users"`
	}{Users: make(map[string]*domain.UserAggregate, len(aggs))}
	for _, a := range aggs {
		file.Users[a.UserID] = a
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(file)
}
