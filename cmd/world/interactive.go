package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/worlds/engine"
	"github.com/wippyai/worlds/world"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

// explorerModel browses the exports of a world's entry module and calls
// its functions.
type explorerModel struct {
	ctx      context.Context
	world    *world.World
	entry    string
	exports  []engine.Export
	inputs   []textinput.Model
	result   string
	err      error
	selected int
	focusIdx int
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
}

func newExplorerModel(ctx context.Context, w *world.World, entry string) *explorerModel {
	return &explorerModel{
		ctx:     ctx,
		world:   w,
		entry:   entry,
		exports: w.Describe(w.Namespace()),
		state:   stateSelect,
	}
}

func (m *explorerModel) Init() tea.Cmd {
	return nil
}

func (m *explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if len(m.exports) == 0 {
					return m, nil
				}
				e := m.exports[m.selected]
				if !e.Func {
					return m, m.readValue
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs, stateShowResult:
				m.reset()
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *explorerModel) reset() {
	m.state = stateSelect
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *explorerModel) prepareInputs() {
	e := m.exports[m.selected]
	m.inputs = make([]textinput.Model, len(e.Params))
	for i, p := range e.Params {
		ti := textinput.New()
		ti.Placeholder = p
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *explorerModel) callFunction() tea.Msg {
	e := m.exports[m.selected]
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = parseArg(input.Value())
	}

	result, err := m.world.Call(m.ctx, e.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatValue(result)}
}

func (m *explorerModel) readValue() tea.Msg {
	e := m.exports[m.selected]
	v, ok := m.world.Namespace().Get(e.Name)
	if !ok {
		return callResultMsg{err: fmt.Errorf("export %q is gone", e.Name)}
	}
	return callResultMsg{result: formatValue(v)}
}

func (m *explorerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("World"))
	b.WriteString(" ")
	b.WriteString(m.entry)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		if len(m.exports) == 0 {
			b.WriteString("The entry module exports nothing.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select an export:\n\n")
		for i, e := range m.exports {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatExport(e)))
			} else {
				b.WriteString("  " + m.renderExport(e))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call or read • q quit"))

	case stateInputArgs:
		e := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(e.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(e.Params[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("%s:\n\n", funcStyle.Render(e.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *explorerModel) renderExport(e engine.Export) string {
	if e.Func {
		params := make([]string, len(e.Params))
		for i, p := range e.Params {
			params[i] = typeStyle.Render(p)
		}
		return funcStyle.Render(e.Name) + "(" + strings.Join(params, ", ") + ")"
	}
	return e.Name + ": " + typeStyle.Render(e.Type)
}

func runInteractive(ctx context.Context, w *world.World, entry string) error {
	p := tea.NewProgram(newExplorerModel(ctx, w, entry), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
