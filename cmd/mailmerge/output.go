package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
)

var (
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#50C878"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// styleEvent colours a FormatProgress line by outcome.
func styleEvent(ev orchestrator.ProgressEvent) string {
	line := orchestrator.FormatProgress(ev)
	switch {
	case ev.Kind == orchestrator.EventStatus && ev.Status == jobs.StatusCompleted:
		return okStyle.Render(line)
	case ev.Kind == orchestrator.EventStatus && ev.Status == jobs.StatusFailed,
		ev.Message != "":
		return errStyle.Render(line)
	case ev.Kind == orchestrator.EventStatus:
		return headStyle.Render(line)
	default:
		return dimStyle.Render(line)
	}
}

// eventPrinter is an Observer that writes every event of one job.
type eventPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	jobID string
}

func (p *eventPrinter) Emit(ev orchestrator.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobID != "" && ev.JobID != p.jobID {
		return
	}
	fmt.Fprintln(p.w, styleEvent(ev))
}

func (p *eventPrinter) follow(jobID string) {
	p.mu.Lock()
	p.jobID = jobID
	p.mu.Unlock()
}

func statusStyle(s jobs.Status) lipgloss.Style {
	switch s {
	case jobs.StatusCompleted:
		return okStyle
	case jobs.StatusFailed:
		return errStyle
	default:
		return headStyle
	}
}

// printJob writes a job snapshot with its artifacts and row errors.
func printJob(w io.Writer, j *jobs.Job) {
	fmt.Fprintf(w, "%s %s\n", headStyle.Render("Job"), j.ID)
	fmt.Fprintf(w, "  status:    %s\n", statusStyle(j.Status).Render(string(j.Status)))
	fmt.Fprintf(w, "  template:  %s\n", j.TemplateID)
	fmt.Fprintf(w, "  data:      %s %s\n", j.DataSourceID, dimStyle.Render(j.Range))
	fmt.Fprintf(w, "  progress:  %d%% (%d/%d rows, %d failed)\n", j.Progress, j.ProcessedRecords, j.TotalRecords, j.FailedRecords)
	if j.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:     %s\n", errStyle.Render(j.ErrorMessage))
	}
	for _, a := range j.Artifacts {
		fmt.Fprintf(w, "  %s %3d %s %s\n", okStyle.Render("+"), a.Sequence, a.Name, dimStyle.Render(a.URL))
	}
	for _, re := range j.RowErrors {
		fmt.Fprintf(w, "  %s %3d %s\n", errStyle.Render("x"), re.Sequence, re.Message)
	}
}

// printJobTable writes one line per job.
func printJobTable(w io.Writer, list []jobs.Job) {
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No jobs found."))
		return
	}
	fmt.Fprintln(w, headStyle.Render(fmt.Sprintf("%-36s  %-10s  %5s  %-20s  %s", "ID", "STATUS", "DONE", "CREATED", "TEMPLATE")))
	for i := range list {
		j := &list[i]
		status := fmt.Sprintf("%-10s", j.Status)
		fmt.Fprintf(w, "%-36s  %s  %4d%%  %-20s  %s\n",
			j.ID, statusStyle(j.Status).Render(status), j.Progress,
			j.CreatedAt.Local().Format(time.DateTime), j.TemplateID)
	}
}

// printFields writes a coverage report.
func printFields(w io.Writer, rep *orchestrator.FieldReport) {
	fmt.Fprintf(w, "%s %s (%s)\n", headStyle.Render("Template"), rep.TemplateName, rep.TemplateID)
	fmt.Fprintf(w, "%s %s %s, %d rows\n", headStyle.Render("Data"), rep.DataSourceID, rep.Range, rep.Rows)
	fmt.Fprintf(w, "  headers:   %s\n", strings.Join(rep.Headers, ", "))
	fmt.Fprintf(w, "  matched:   %s\n", okStyle.Render(strings.Join(rep.Coverage.Matched, ", ")))
	if len(rep.Coverage.Unmatched) > 0 {
		fmt.Fprintf(w, "  unmatched: %s\n", errStyle.Render(strings.Join(rep.Coverage.Unmatched, ", ")))
	}
	if len(rep.Coverage.UnusedHeaders) > 0 {
		fmt.Fprintf(w, "  unused:    %s\n", dimStyle.Render(strings.Join(rep.Coverage.UnusedHeaders, ", ")))
	}
}
