package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/callbridge/trampoline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	slotStyle = lipgloss.NewStyle().
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

var browseCmd = &cobra.Command{
	Use:   "browse [struct.slot...]",
	Short: "Browse slots interactively and probe them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("browse needs a terminal; use table or probe instead")
		}
		e, err := loadEnv(args)
		if err != nil {
			return err
		}
		set, err := e.buildSet()
		if err != nil {
			return err
		}
		// logging to stderr would tear the alternate screen
		e.log = zap.NewNop()
		p := tea.NewProgram(newBrowseModel(e, set), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

type browseState int

const (
	stateSelectSlot browseState = iota
	stateShowTable
	stateInputArgs
	stateShowResult
)

type browseModel struct {
	err      error
	env      *env
	set      *trampoline.Set
	filter   textinput.Model
	visible  []*trampoline.Trampoline
	inputs   []textinput.Model
	result   string
	selected int
	focusIdx int
	state    browseState
}

type probeDoneMsg struct {
	err    error
	result string
}

func newBrowseModel(e *env, set *trampoline.Set) *browseModel {
	filter := textinput.New()
	filter.Prompt = "filter: "
	filter.Placeholder = "struct or slot name"
	filter.Width = 40
	filter.Focus()

	m := &browseModel{env: e, set: set, filter: filter}
	m.applyFilter()
	return m
}

func (m *browseModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *browseModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for _, t := range m.set.Trampolines() {
		if q == "" || strings.Contains(strings.ToLower(t.Name()), q) {
			m.visible = append(m.visible, t)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *browseModel) current() *trampoline.Trampoline {
	if m.selected < len(m.visible) {
		return m.visible[m.selected]
	}
	return nil
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "up":
			if m.state == stateSelectSlot && m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down":
			if m.state == stateSelectSlot && m.selected < len(m.visible)-1 {
				m.selected++
			}
			return m, nil

		case "enter":
			switch m.state {
			case stateSelectSlot:
				if m.current() != nil {
					m.state = stateShowTable
				}
			case stateShowTable:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.probe
				}
				m.state = stateInputArgs
			case stateInputArgs:
				return m, m.probe
			case stateShowResult:
				m.state = stateShowTable
				m.result = ""
				m.err = nil
			}
			return m, nil

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
			return m, nil

		case "esc":
			switch m.state {
			case stateShowTable:
				m.state = stateSelectSlot
			case stateInputArgs, stateShowResult:
				m.state = stateShowTable
				m.inputs = nil
				m.result = ""
				m.err = nil
			}
			return m, nil

		case "q":
			if m.state == stateShowTable || m.state == stateShowResult {
				return m, tea.Quit
			}
		}

	case probeDoneMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	switch m.state {
	case stateSelectSlot:
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	case stateInputArgs:
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

// prepareInputs adds one input per parameter after self, plus the callback's
// return value for non-void slots.
func (m *browseModel) prepareInputs() {
	t := m.current()
	sig := t.Sig
	m.inputs = nil
	for i := 1; i < len(sig.Params); i++ {
		ti := textinput.New()
		ti.Prompt = sig.Func.ParamName(i) + ": "
		ti.Placeholder = sig.Params[i].Kind.GoType()
		ti.Width = 40
		m.inputs = append(m.inputs, ti)
	}
	if !sig.Result.Void() {
		ti := textinput.New()
		ti.Prompt = "return: "
		ti.Placeholder = sig.Result.Kind.GoType()
		ti.Width = 40
		m.inputs = append(m.inputs, ti)
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	m.focusIdx = 0
}

func (m *browseModel) probe() tea.Msg {
	t := m.current()
	req := probeRequest{Slot: t.Struct + "." + t.Slot}
	n := len(t.Sig.Params) - 1
	for i, input := range m.inputs {
		if i < n {
			req.Args = append(req.Args, input.Value())
		} else {
			req.Result = input.Value()
		}
	}
	res, err := runProbe(context.Background(), m.env, req)
	if err != nil {
		return probeDoneMsg{err: err}
	}
	return probeDoneMsg{result: res.String()}
}

func (m *browseModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("callbridge"))
	fmt.Fprintf(&b, " %s  %d trampolines, table %d\n\n", m.set.Namespace(), m.set.Len(), m.set.TableSize())

	switch m.state {
	case stateSelectSlot:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		if len(m.visible) == 0 {
			b.WriteString(helpStyle.Render("no matching slots"))
			b.WriteString("\n")
		}
		for i, t := range m.visible {
			line := m.formatSlot(t)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + t.Name()))
				b.WriteString(" " + typeStyle.Render(t.Sig.HostSignature()))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("type to filter • ↑/↓ select • enter details • ctrl+c quit"))

	case stateShowTable:
		t := m.current()
		fmt.Fprintf(&b, "%s  #%d @%d\n", slotStyle.Render(t.Name()), t.ID, t.Offset)
		b.WriteString(typeStyle.Render(t.Sig.Func.Decl))
		b.WriteString("\n\n")
		var tbl bytes.Buffer
		if err := t.Sig.WriteTable(&tbl); err != nil {
			b.WriteString(errorStyle.Render(err.Error()))
		} else {
			b.WriteString(tbl.String())
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter probe • esc back • q quit"))

	case stateInputArgs:
		t := m.current()
		fmt.Fprintf(&b, "Probing %s\n\n", slotStyle.Render(t.Name()))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}

	return b.String()
}

func (m *browseModel) formatSlot(t *trampoline.Trampoline) string {
	return slotStyle.Render(t.Name()) + " " + typeStyle.Render(t.Sig.HostSignature())
}
