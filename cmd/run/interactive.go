package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/asbridge/errors"
	"github.com/wippyai/asbridge/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const maxHistory = 8

type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	module   *runtime.Module
	instance *runtime.Instance
	logs     *logBuffer
	opts     options
	history  []exchange
	input    textinput.Model
	loading  bool
}

type exchange struct {
	err    error
	input  string
	output string
	logs   []string
}

// logBuffer collects guest log lines for the exchange in progress.
type logBuffer struct {
	lines []string
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.lines = append(b.lines, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (b *logBuffer) take() []string {
	lines := b.lines
	b.lines = nil
	return lines
}

func newInteractiveModel(opts options) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = sampleBody
	ti.Prompt = "body: "
	ti.Width = 60
	ti.Focus()

	return &interactiveModel{
		opts:    opts,
		input:   ti,
		logs:    &logBuffer{},
		loading: true,
	}
}

type loadedMsg struct {
	err error
	rt  *runtime.Runtime
	mod *runtime.Module
}

type callResultMsg struct {
	exchange exchange
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadModule)
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.opts.wasmFile)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := newRuntime(ctx, m.opts, io.Writer(m.logs))
	if err != nil {
		return loadedMsg{err: err}
	}

	mod, err := rt.Load(ctx, data)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{rt: rt, mod: mod}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "esc":
			m.input.SetValue("")
			return m, nil

		case "enter":
			if m.loading || m.module == nil {
				return m, nil
			}
			body := m.input.Value()
			if body == "" {
				body = sampleBody
			}
			m.input.SetValue("")
			return m, m.transform(body)
		}

	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.module = msg.mod

	case callResultMsg:
		m.history = append(m.history, msg.exchange)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// transform runs body through the entrypoint. A poisoned instance is
// replaced before the call.
func (m *interactiveModel) transform(body string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		ex := exchange{input: body}

		if m.instance != nil && m.instance.Poisoned() {
			m.instance.Close(ctx)
			m.instance = nil
		}
		if m.instance == nil {
			inst, err := m.module.Instantiate(ctx)
			if err != nil {
				ex.err = err
				ex.logs = m.logs.take()
				return callResultMsg{exchange: ex}
			}
			m.instance = inst
		}

		ex.output, ex.err = m.instance.Transform(ctx, body)
		ex.logs = m.logs.take()
		return callResultMsg{exchange: ex}
	}
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.instance != nil {
		m.instance.Close(ctx)
	}
	if m.rt != nil {
		m.rt.Close(ctx)
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.loading {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("AssemblyScript Runner"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	b.WriteString(" ")
	b.WriteString(funcStyle.Render(m.opts.funcName))
	b.WriteString("\n\n")

	for i, ex := range m.history {
		b.WriteString(fmt.Sprintf("[%d] %s\n", i, ex.input))
		for _, line := range ex.logs {
			b.WriteString("    ")
			b.WriteString(logStyle.Render(line))
			b.WriteString("\n")
		}
		switch {
		case ex.err == nil:
			b.WriteString("  → ")
			b.WriteString(resultStyle.Render(ex.output))
		case errors.IsTrap(ex.err):
			b.WriteString("  ")
			b.WriteString(errorStyle.Render(fmt.Sprintf("guest fault: %v (instance replaced on next call)", ex.err)))
		default:
			b.WriteString("  ")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", ex.err)))
		}
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter transform • esc clear • ctrl+c quit"))

	return b.String()
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
