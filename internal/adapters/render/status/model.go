package status

import (
	"errors"
	"io"

	"github.com/bnema/taxon-resolver-cli/internal/application"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

// sectionMsg asks the model to draw the section at the given index.
type sectionMsg int

type model struct {
	status application.Status
	opts   RenderOptions
	styles styles
	lines  []string
	done   bool
}

func newModel(status application.Status, opts RenderOptions) model {
	return model{
		status: status,
		opts:   opts,
		styles: newStyles(),
	}
}

func drawSection(index int) tea.Cmd {
	return func() tea.Msg {
		return sectionMsg(index)
	}
}

func (m model) Init() tea.Cmd {
	return drawSection(0)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	index, ok := msg.(sectionMsg)
	if !ok {
		return m, nil
	}
	if int(index) >= len(sections) {
		m.done = true
		return m, tea.Quit
	}

	m.lines = append(m.lines, sections[index](m.status, m.opts, m.styles)...)
	return m, drawSection(int(index) + 1)
}

func (m model) View() string {
	if !m.done {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.lines...)
}

// Render draws the cache summary and returns it as a string.
func Render(status application.Status, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newModel(status, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok || !rendered.done {
		return "", ErrUnexpectedRenderModel
	}
	return rendered.View(), nil
}
