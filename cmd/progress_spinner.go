package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

type workDoneMsg struct {
	err error
}

type workStepMsg string

type workPercentMsg int

type workProgressModel struct {
	spinner spinner.Model
	bar     progress.Model
	label   string
	percent float64
	work    tea.Cmd
	err     error
	done    bool
}

func newWorkProgressModel(label string, work tea.Cmd) workProgressModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return workProgressModel{
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		label:   label,
		work:    work,
	}
}

func (m workProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.work)
}

func (m workProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case workStepMsg:
		m.label = string(msg)
		return m, nil
	case workPercentMsg:
		m.percent = float64(min(max(int(msg), 0), 100)) / 100
		return m, nil
	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m workProgressModel) View() string {
	if m.done {
		return ""
	}
	if m.percent == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), m.label)
	}
	return fmt.Sprintf("%s %s... %s", m.spinner.View(), m.label, m.bar.ViewAs(m.percent))
}

// programProgress forwards progress reports to the running program.
type programProgress struct {
	program *tea.Program
}

func (p programProgress) Step(label string) {
	p.program.Send(workStepMsg(label))
}

func (p programProgress) Percent(percent int) {
	p.program.Send(workPercentMsg(percent))
}

// logProgress reports progress as debug log entries when no display is drawn.
type logProgress struct {
	log logrus.FieldLogger
}

func (p logProgress) Step(label string) {
	p.log.Debug(label)
}

func (p logProgress) Percent(percent int) {
	p.log.WithField("percent", percent).Debug("progress")
}

func runWithProgress(ctx context.Context, output io.Writer, label string, show bool, log logrus.FieldLogger, work func(context.Context, ports.Progress) error) error {
	if !show {
		return work(ctx, logProgress{log: log})
	}

	var p *tea.Program
	workCmd := func() tea.Msg {
		return workDoneMsg{err: work(ctx, programProgress{program: p})}
	}

	p = tea.NewProgram(
		newWorkProgressModel(label, workCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(workProgressModel)
	if !ok {
		return fmt.Errorf("unexpected final progress model type %T", finalModel)
	}

	return result.err
}
