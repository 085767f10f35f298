package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kestrelworks/triage/internal/report"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize workload and bottlenecks",
	Long: `Build summaries from the cached workspace.

'report workload' ranks assignees by utilization; 'report bottlenecks'
ranks open tasks by how many other tasks transitively wait on them.`,
}

var reportWorkloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Per-assignee load, capacity and utilization",
	RunE:  runReportWorkload,
}

var reportBottlenecksCmd = &cobra.Command{
	Use:   "bottlenecks",
	Short: "Open tasks that block the most downstream work",
	RunE:  runReportBottlenecks,
}

func runReportWorkload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := openWorkspace(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	return emitReport(report.New(ws.orch).Workload())
}

func runReportBottlenecks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ws, err := openWorkspace(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	return emitReport(report.New(ws.orch).Bottlenecks())
}

// renderable is either of the report types; both know their text form.
type renderable interface {
	Render(out io.Writer)
}

func emitReport(r any) error {
	switch reportFormat {
	case "", "text":
		rr, ok := r.(renderable)
		if !ok {
			return fmt.Errorf("report is not renderable")
		}
		rr.Render(os.Stdout)
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		out, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", reportFormat)
	}
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportFormat, "format", "text", "Output format: text, json or yaml")
	reportCmd.AddCommand(reportWorkloadCmd)
	reportCmd.AddCommand(reportBottlenecksCmd)
}
