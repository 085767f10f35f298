package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kestrelworks/triage/internal/state"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [intake-id]",
	Short: "Show recent intake outcomes",
	Long: `List recent intake runs from the audit journal, newest first.

With an intake ID, show the full journal entry for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	journalPath := cfg.Journal.Path
	if journalPath == "" {
		journalPath = state.DefaultJournalPath()
	}
	journal, err := state.OpenJournal(journalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	if len(args) == 1 {
		return showEntry(journal, args[0])
	}

	entries, err := journal.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No intakes recorded yet.")
		return nil
	}

	fmt.Printf("%-10s %-20s %-8s %-10s %-12s %-10s %s\n",
		"INTAKE", "OUTCOME", "TASK", "ASSIGNEE", "REQUESTER", "AGE", "DESCRIPTION")
	for _, e := range entries {
		fmt.Printf("%-10s %s %-8s %-10s %-12s %-10s %s\n",
			e.ID,
			outcomeLabel(e.Outcome),
			orDash(e.TaskID),
			orDash(e.AssigneeID),
			e.Requester,
			ago(e.CreatedAt),
			firstLine(e.Description, 48),
		)
	}
	return nil
}

func showEntry(journal *state.Journal, id string) error {
	entry, err := journal.Get(id)
	if err != nil {
		return fmt.Errorf("intake %s: %w", id, err)
	}
	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}

	fmt.Printf("Intake:      %s\n", entry.ID)
	fmt.Printf("Outcome:     %s\n", entry.Outcome)
	fmt.Printf("Requester:   %s\n", entry.Requester)
	fmt.Printf("Recorded:    %s (%s)\n", entry.CreatedAt.Format(time.RFC3339), ago(entry.CreatedAt))
	fmt.Printf("Duration:    %s\n", entry.Duration.Round(time.Millisecond))
	if entry.TaskID != "" {
		fmt.Printf("Task:        %s\n", entry.TaskID)
	}
	if entry.AssigneeID != "" {
		fmt.Printf("Assignee:    %s\n", entry.AssigneeID)
	}
	if entry.Reason != "" {
		fmt.Printf("Reason:      %s\n", entry.Reason)
	}
	if len(entry.Conflicts) > 0 {
		fmt.Println("Conflicts:")
		for _, c := range entry.Conflicts {
			fmt.Printf("  - %s\n", c)
		}
	}
	fmt.Printf("Description: %s\n", entry.Description)
	return nil
}

// outcomeLabel pads before coloring so ANSI escapes don't break the
// column alignment.
func outcomeLabel(outcome string) string {
	padded := fmt.Sprintf("%-20s", outcome)
	switch outcome {
	case "finalized":
		return color.GreenString(padded)
	case "blocked", "rejected":
		return color.RedString(padded)
	case "needs_disambiguation":
		return color.YellowString(padded)
	default:
		return padded
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print entries as JSON")
}
