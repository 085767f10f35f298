// Package report builds workload and bottleneck summaries from the live
// intake caches. Reports are snapshots: they read the tracker and graph as
// they stand and never touch the board.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/kestrelworks/triage/internal/deps"
	"github.com/kestrelworks/triage/internal/workload"
	"github.com/kestrelworks/triage/pkg/models"
)

// Source is the cache surface reports read from. The intake orchestrator
// satisfies it.
type Source interface {
	Tracker() *workload.Tracker
	Graph() *deps.Graph
	OpenTasks() []*models.Task
}

// Reporter builds point-in-time reports over a source.
type Reporter struct {
	src Source
}

// New creates a Reporter.
func New(src Source) *Reporter {
	return &Reporter{src: src}
}

// AssigneeRow is one assignee's standing in the workload report.
type AssigneeRow struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Load     float64 `json:"load" yaml:"load"`
	Capacity float64 `json:"capacity" yaml:"capacity"`
	// Utilization is Load over Capacity, zero when capacity is unset.
	Utilization float64 `json:"utilization" yaml:"utilization"`
}

// WorkloadReport lists every tracked assignee, busiest first.
type WorkloadReport struct {
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	Assignees   []AssigneeRow `json:"assignees" yaml:"assignees"`
}

// Workload returns per-assignee load and utilization, sorted by
// utilization descending, then ID.
func (r *Reporter) Workload() WorkloadReport {
	candidates := r.src.Tracker().Candidates()
	rows := make([]AssigneeRow, 0, len(candidates))
	for _, a := range candidates {
		row := AssigneeRow{ID: a.ID, Name: a.Name, Load: a.Load, Capacity: a.Capacity}
		if a.Capacity > 0 {
			row.Utilization = a.Load / a.Capacity
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Utilization != rows[j].Utilization {
			return rows[i].Utilization > rows[j].Utilization
		}
		return rows[i].ID < rows[j].ID
	})
	return WorkloadReport{GeneratedAt: time.Now(), Assignees: rows}
}

// Bottleneck is an open task that other work waits on.
type Bottleneck struct {
	TaskID     string          `json:"task_id" yaml:"task_id"`
	Title      string          `json:"title" yaml:"title"`
	AssigneeID string          `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`
	Priority   models.Priority `json:"priority" yaml:"priority"`
	// Dependents counts the tasks transitively blocked by this one.
	Dependents int `json:"dependents" yaml:"dependents"`
	// Unassigned flags a bottleneck nobody is working toward.
	Unassigned bool `json:"unassigned" yaml:"unassigned"`
}

// BottleneckReport lists blocking tasks, most blocking first.
type BottleneckReport struct {
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	Tasks       []Bottleneck `json:"tasks" yaml:"tasks"`
}

// Bottlenecks ranks open tasks by how much other work transitively waits
// on them. Tasks blocking nothing are omitted.
func (r *Reporter) Bottlenecks() BottleneckReport {
	graph := r.src.Graph()
	var rows []Bottleneck
	for _, t := range r.src.OpenTasks() {
		dependents := graph.TransitiveDependents(t.ID)
		if len(dependents) == 0 {
			continue
		}
		rows = append(rows, Bottleneck{
			TaskID:     t.ID,
			Title:      t.Title,
			AssigneeID: t.AssigneeID,
			Priority:   t.Priority,
			Dependents: len(dependents),
			Unassigned: t.AssigneeID == "",
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Dependents != rows[j].Dependents {
			return rows[i].Dependents > rows[j].Dependents
		}
		return rows[i].TaskID < rows[j].TaskID
	})
	return BottleneckReport{GeneratedAt: time.Now(), Tasks: rows}
}

// Render writes the workload table. Overloaded assignees show red, those
// above 80% yellow.
func (w WorkloadReport) Render(out io.Writer) {
	if len(w.Assignees) == 0 {
		fmt.Fprintln(out, "No assignees tracked. Run a sync first.")
		return
	}
	color.New(color.Bold).Fprintf(out, "%-12s %-20s %8s %10s %12s\n",
		"ID", "NAME", "LOAD", "CAPACITY", "UTILIZATION")
	for _, a := range w.Assignees {
		line := fmt.Sprintf("%-12s %-20s %8.1f %10.1f %11.0f%%",
			a.ID, a.Name, a.Load, a.Capacity, a.Utilization*100)
		switch {
		case a.Utilization >= 1.0:
			color.New(color.FgRed).Fprintln(out, line)
		case a.Utilization >= 0.8:
			color.New(color.FgYellow).Fprintln(out, line)
		default:
			fmt.Fprintln(out, line)
		}
	}
}

// Render writes the bottleneck table.
func (b BottleneckReport) Render(out io.Writer) {
	if len(b.Tasks) == 0 {
		fmt.Fprintln(out, "No bottlenecks: no open task blocks another.")
		return
	}
	color.New(color.Bold).Fprintf(out, "%-8s %-40s %-12s %10s\n",
		"TASK", "TITLE", "ASSIGNEE", "DEPENDENTS")
	for _, t := range b.Tasks {
		assignee := t.AssigneeID
		if t.Unassigned {
			assignee = color.RedString("nobody")
		}
		fmt.Fprintf(out, "%-8s %-40s %-12s %10d\n",
			t.TaskID, truncate(t.Title, 40), assignee, t.Dependents)
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
