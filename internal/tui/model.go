package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/resurrectci/resurrectci/internal/models"
)

var (
	inputStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	simulatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1)
	degradedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
)

type frameMsg struct {
	frame Frame
	err   error
}

type model struct {
	client   *Client
	project  string
	info     models.SessionInfo
	lines    []string
	viewport viewport.Model
	input    textinput.Model
	ready    bool
	err      error
}

func newModel(client *Client, project string, info models.SessionInfo) model {
	input := textinput.New()
	input.Prompt = "$ "
	input.Placeholder = "type a command, or `help`"
	input.Focus()

	return model{
		client:  client,
		project: project,
		info:    info,
		input:   input,
	}
}

func listen(client *Client) tea.Cmd {
	return func() tea.Msg {
		frame, err := client.ReadFrame()
		return frameMsg{frame: frame, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listen(m.client))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyCtrlC:
			_ = m.client.SendInterrupt()
			return m, nil

		case tea.KeyUp:
			_ = m.client.SendHistory("previous")
			return m, nil

		case tea.KeyDown:
			_ = m.client.SendHistory("next")
			return m, nil

		case tea.KeyEnter:
			command := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if command == "" {
				return m, nil
			}
			if command == "exit" {
				_ = m.client.SendCommand(command)
				return m, tea.Quit
			}
			_ = m.client.SendCommand(command)
			return m, nil
		}

	case frameMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.applyFrame(msg.frame)
		return m, listen(m.client)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) applyFrame(frame Frame) {
	switch frame.Type {
	case "message":
		if frame.Message != nil {
			m.lines = append(m.lines, renderMessage(*frame.Message))
			m.refreshViewport()
		}

	case "status":
		if frame.Info != nil {
			m.info = *frame.Info
		}

	case "history":
		if frame.Active {
			m.input.SetValue(frame.Entry)
			m.input.CursorEnd()
		} else {
			m.input.SetValue("")
		}

	case "error":
		m.lines = append(m.lines, errorStyle.Render(frame.Error))
		m.refreshViewport()
	}
}

func renderMessage(msg models.TerminalMessage) string {
	text := msg.Text
	if msg.Simulated {
		text = simulatedStyle.Render("~ ") + text
	}

	switch msg.Kind {
	case models.MessageInput:
		return inputStyle.Render(text)
	case models.MessageError:
		return errorStyle.Render(text)
	case models.MessageSystem:
		return systemStyle.Render(text)
	default:
		return text
	}
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Attaching..."
	}

	style := statusStyle
	if m.info.Status == models.StatusDegraded {
		style = degradedStyle
	}

	status := fmt.Sprintf("%s | %s | %s", m.project, m.info.Status, m.info.Mode)
	if m.info.DevServer != nil {
		status += fmt.Sprintf(" | dev server %s", m.info.DevServer.URL)
	}
	if m.info.IsRunning {
		status += " | running"
	}

	return style.Render(status) + "\n" + m.viewport.View() + "\n" + m.input.View()
}

// Run attaches a full-screen terminal to the project session on the server.
func Run(baseURL, project string) error {
	client := NewClient(baseURL, project)
	defer client.Close()

	info, err := client.OpenSession(context.Background())
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}

	program := tea.NewProgram(newModel(client, project, info), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(model); ok && m.err != nil {
		return fmt.Errorf("connection lost: %w", m.err)
	}
	return nil
}
