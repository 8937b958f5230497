package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/charmbracelet/lipgloss"
)

const defaultBarWidth = 24

type RenderOptions struct {
	Now      time.Time
	BarWidth int
}

type section func(application.Status, RenderOptions, styles) []string

// sections lists the parts of the status view in display order.
var sections = []section{headerSection, cacheSection, runsSection}

func headerSection(status application.Status, _ RenderOptions, s styles) []string {
	return []string{
		s.title.Render("Taxon Resolver Status"),
		s.header.Render(fmt.Sprintf("accessions: %d  taxa: %d", status.Cache.Total, status.TaxonCount)),
	}
}

func cacheSection(status application.Status, opts RenderOptions, s styles) []string {
	lines := append([]string{s.section.Render("Accession cache")}, cacheLines(status.Cache, opts, s)...)
	if status.TaxonCount == 0 {
		lines = append(lines, s.warning.Render("no taxonomy loaded, run `txr taxonomy import`"))
	}
	return lines
}

func runsSection(status application.Status, opts RenderOptions, s styles) []string {
	lines := []string{s.section.Render("Recent runs")}
	if len(status.Runs) == 0 {
		return append(lines, s.empty.Render("No runs recorded."))
	}
	for _, run := range status.Runs {
		lines = append(lines, runLine(run, opts, s))
	}
	return lines
}

func cacheLines(cache ports.CacheStats, opts RenderOptions, s styles) []string {
	if cache.Total == 0 {
		return []string{s.empty.Render("Cache is empty.")}
	}

	width := opts.BarWidth
	if width <= 0 {
		width = defaultBarWidth
	}
	ratio := float64(cache.Resolved) / float64(cache.Total)

	lines := []string{
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.label.Render("resolved:"),
			" ",
			renderBar(ratio, width, s),
			" ",
			s.detail.Render(fmt.Sprintf("%.0f%% (%d)", ratio*100, cache.Resolved)),
		),
		s.label.Render("unidentified:") + " " + s.detail.Render(fmt.Sprintf("%d", cache.Unidentified)),
	}

	pending := s.label.Render("pending:") + " " + s.detail.Render(fmt.Sprintf("%d", cache.Pending))
	if cache.Pending > 0 {
		pending += " " + s.warning.Render("run `txr retry` to fetch them again")
	}
	return append(lines, pending)
}

func runLine(run domain.RunSummary, opts RenderOptions, s styles) string {
	counts := fmt.Sprintf(
		"requested %d, cached %d, resolved %d, unidentified %d, pending %d",
		run.Requested, run.AlreadyCached, run.Resolved, run.Unidentified, run.Pending,
	)

	parts := []string{
		s.label.Render(runContextLabel(run.Context)),
		s.detail.Render(counts),
		s.meta.Render(fmt.Sprintf("(%s)", finishedLabel(run, opts.Now))),
	}
	if run.FailedBatches > 0 {
		parts = append(parts, s.warning.Render(fmt.Sprintf("%d/%d batches failed", run.FailedBatches, run.Batches)))
	}
	if run.Aborted {
		parts = append(parts, s.warning.Render("[aborted]"))
	}
	return strings.Join(parts, " ")
}

func runContextLabel(context domain.RunContext) string {
	if context == "" {
		return "run"
	}
	return string(context)
}

func finishedLabel(run domain.RunSummary, now time.Time) string {
	took := run.Duration().Round(time.Second)
	if run.FinishedAt.IsZero() {
		return "unfinished"
	}
	if now.IsZero() || run.FinishedAt.After(now) {
		return fmt.Sprintf("%s, took %s", run.FinishedAt.Format("2006-01-02 15:04"), took)
	}
	return fmt.Sprintf("%s ago, took %s", formatAge(now.Sub(run.FinishedAt)), took)
}

func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "moments"
	case age < time.Hour:
		return plural(int(age.Minutes()), "minute")
	case age < 24*time.Hour:
		return plural(int(age.Hours()), "hour")
	default:
		return plural(int(age.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func renderBar(ratio float64, width int, s styles) string {
	filled := int(math.Round(float64(width) * math.Max(0, math.Min(1, ratio))))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}
