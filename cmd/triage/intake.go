package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kestrelworks/triage/internal/intake"
	"github.com/kestrelworks/triage/internal/tui"
	"github.com/kestrelworks/triage/pkg/models"
)

var (
	intakeRequester string
	intakeClient    string
	intakeOverride  string
	intakeJSON      bool
	intakeNoInput   bool
)

var intakeCmd = &cobra.Command{
	Use:   "intake <description>",
	Short: "Run one task intake",
	Long: `Run the full intake pipeline on a free-text task description.

The description is resolved to a client and project, classified for
priority, tags and effort, checked for dependencies and duplicates
against open tasks, scored across assignees, and committed to the board
unless a conflict blocks it.

When the client is ambiguous, an interactive picker lets you choose; in
scripts, pass --no-input and pin the choice with --client. Overridable
conflicts (overload, scheduling) can be cleared with --override "<reason>"
if your requester holds the override permission.`,
	Example: `  triage intake "Fix the login redirect for Client Acme" --requester dana
  triage intake "Update the billing export" --client c-acme --no-input --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIntake,
}

func runIntake(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	var opts []intake.RunOption
	if intakeClient != "" {
		opts = append(opts, intake.WithPinnedClient(intakeClient))
	}
	if intakeOverride != "" {
		opts = append(opts, intake.WithOverride(intakeOverride))
	}

	res, err := ws.orch.Intake(ctx, args[0], requesterID(), opts...)
	if err != nil {
		return err
	}

	if res.Kind == intake.ResultNeedsDisambiguation && canPrompt() {
		chosen, pickErr := tui.PickClient("Which client is this for?", res.Resolution.Client.Candidates)
		switch {
		case pickErr == nil:
			resumeOpts := append(opts, intake.WithPinnedClient(chosen))
			res, err = ws.orch.Intake(ctx, args[0], requesterID(), resumeOpts...)
			if err != nil {
				return err
			}
		case errors.Is(pickErr, tui.ErrPickerCancelled):
			// Fall through and print the candidate list.
		default:
			return pickErr
		}
	}

	if intakeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderResult(os.Stdout, res)
	return nil
}

// requesterID returns the --requester value, defaulting to the OS user.
func requesterID() string {
	if intakeRequester != "" {
		return intakeRequester
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "local"
}

// canPrompt reports whether the interactive picker may run.
func canPrompt() bool {
	return !intakeNoInput && isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

func renderResult(w io.Writer, res intake.Result) {
	switch res.Kind {
	case intake.ResultFinalized:
		fmt.Fprintf(w, "%s Task %s created (%s)\n\n",
			color.GreenString("✓"), res.Task.ID, res.Duration.Round(time.Millisecond))
		renderTask(w, res)

	case intake.ResultNeedsDisambiguation:
		fmt.Fprintf(w, "%s Intake %s halted: the client is ambiguous\n\n",
			color.YellowString("?"), res.IntakeID)
		for _, c := range res.Resolution.Client.Candidates {
			fmt.Fprintf(w, "  %s  %s (similarity %.2f)\n", c.ID, c.Name, c.Similarity)
		}
		fmt.Fprintf(w, "\nRe-run with --client <id> to pin the client.\n")

	case intake.ResultBlocked:
		fmt.Fprintf(w, "%s Intake %s blocked\n\n", color.RedString("✗"), res.IntakeID)
		if res.NoCapacity {
			fmt.Fprintf(w, "  no assignee has remaining capacity\n")
		}
		overridable := false
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  %s\n", c.String())
			if c.Overridable() {
				overridable = true
			}
		}
		if overridable {
			fmt.Fprintf(w, "\nRe-run with --override \"<reason>\" to clear overridable conflicts.\n")
		}

	case intake.ResultRejected:
		fmt.Fprintf(w, "%s Intake %s rejected: %s\n", color.RedString("✗"), res.IntakeID, res.Reason)
	}
}

func renderTask(w io.Writer, res intake.Result) {
	t := res.Task
	fmt.Fprintf(w, "  Title:     %s\n", t.Title)
	if res.Resolution != nil && res.Resolution.Client.ID != "" {
		fmt.Fprintf(w, "  Client:    %s (%s)\n", res.Resolution.Client.Name, res.Resolution.Client.ID)
	}
	if res.Resolution != nil && res.Resolution.Project.ID != "" {
		fmt.Fprintf(w, "  Project:   %s (%s)\n", res.Resolution.Project.Name, res.Resolution.Project.ID)
	}
	if t.AssigneeID != "" {
		line := fmt.Sprintf("  Assignee:  %s", t.AssigneeID)
		if res.Scoring != nil && res.Scoring.Selected != nil {
			s := res.Scoring.Selected
			line += fmt.Sprintf("  (score %.2f: expertise %.2f, load %.2f, proximity %.2f)",
				s.Score, s.ExpertiseMatch, s.NormalizedLoad, s.Proximity)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  Priority:  %s\n", priorityLabel(t.Priority))
	fmt.Fprintf(w, "  Estimate:  %.0fh\n", t.EstimatedHours)
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "  Tags:      %s\n", strings.Join(t.Tags, ", "))
	}
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(w, "  Depends:   %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(res.Duplicates) > 0 {
		ids := make([]string, len(res.Duplicates))
		for i, d := range res.Duplicates {
			ids[i] = fmt.Sprintf("%s (%.2f)", d.EntityID, d.Similarity)
		}
		fmt.Fprintf(w, "  %s possible duplicates: %s\n", color.YellowString("!"), strings.Join(ids, ", "))
	}
}

func priorityLabel(p models.Priority) string {
	switch p {
	case models.PriorityUrgent:
		return color.RedString(string(p))
	case models.PriorityHigh:
		return color.YellowString(string(p))
	default:
		return string(p)
	}
}

func init() {
	intakeCmd.Flags().StringVar(&intakeRequester, "requester", "", "Requester principal ID (defaults to $USER)")
	intakeCmd.Flags().StringVar(&intakeClient, "client", "", "Pin the client decision to this ID")
	intakeCmd.Flags().StringVar(&intakeOverride, "override", "", "Override overridable conflicts, citing a reason")
	intakeCmd.Flags().BoolVar(&intakeJSON, "json", false, "Print the result as JSON")
	intakeCmd.Flags().BoolVar(&intakeNoInput, "no-input", false, "Never prompt; fail closed on ambiguity")
}
