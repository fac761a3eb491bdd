// Package tui is the terminal presentation layer. It renders controller
// snapshots and turns key presses and pasted paths into intents.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/example/leaf-check/internal/controller"
	"github.com/example/leaf-check/internal/selection"
)

// Dispatcher is the intent surface of the upload controller.
type Dispatcher interface {
	Browse(file selection.File) bool
	Drop(file selection.File) bool
	DragEnter()
	DragLeave()
	Clear()
	Subscribe() (<-chan controller.UIState, func())
}

// AllowedTypes limits the file picker to images.
var AllowedTypes = []string{".jpg", ".jpeg", ".png", ".gif"}

type mode int

const (
	modeHome mode = iota
	modeBrowse
	modeDrop
)

type stateMsg controller.UIState

type updatesClosedMsg struct{}

// Model is the bubbletea model for the uploader screen. Every intent is
// dispatched inline from Update so the controller sees them in key order.
type Model struct {
	dispatch    Dispatcher
	updates     <-chan controller.UIState
	unsubscribe func()

	state    controller.UIState
	mode     mode
	keys     KeyMap
	picker   filepicker.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	width    int
	quitting bool
}

// New subscribes to d and starts the picker in startDir.
func New(d Dispatcher, startDir string) Model {
	updates, unsubscribe := d.Subscribe()

	picker := filepicker.New()
	picker.AllowedTypes = AllowedTypes
	picker.CurrentDirectory = startDir
	picker.AutoHeight = false
	picker.Height = 12
	picker.KeyMap.Back = key.NewBinding(key.WithKeys("h", "backspace", "left"), key.WithHelp("h", "back"))

	input := textinput.New()
	input.Prompt = "path: "
	input.Placeholder = "drop or paste an image path"

	return Model{
		dispatch:    d,
		updates:     updates,
		unsubscribe: unsubscribe,
		keys:        DefaultKeyMap(),
		picker:      picker,
		input:       input,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:        help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.updates), m.spinner.Tick)
}

// waitForState delivers the next published snapshot.
func waitForState(updates <-chan controller.UIState) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return stateMsg(st)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = controller.UIState(msg)
		return m, waitForState(m.updates)

	case updatesClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m.quit()
		}
		switch m.mode {
		case modeBrowse:
			return m.updateBrowse(msg)
		case modeDrop:
			return m.updateDrop(msg)
		default:
			return m.updateHome(msg)
		}
	}

	if m.mode == modeBrowse {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateHome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Paste {
		m.dropPath(string(msg.Runes))
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Browse):
		m.mode = modeBrowse
		return m, m.picker.Init()
	case key.Matches(msg, m.keys.Drop):
		m.mode = modeDrop
		m.input.Reset()
		m.dispatch.DragEnter()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Clear):
		m.dispatch.Clear()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.unsubscribe()
	return m, tea.Quit
}

func (m Model) updateDrop(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeHome
		m.input.Blur()
		m.dispatch.DragLeave()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		path := m.input.Value()
		m.mode = modeHome
		m.input.Blur()
		m.dropPath(path)
		return m, nil
	case msg.Paste:
		m.mode = modeHome
		m.input.Blur()
		m.dropPath(string(msg.Runes))
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Cancel) {
		m.mode = modeHome
		return m, nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.mode = modeHome
		m.dispatch.Browse(selection.FromPath(path))
	}
	return m, cmd
}

// dropPath dispatches a drop for a pasted or typed path. An empty path ends
// the hover without selecting anything.
func (m Model) dropPath(raw string) {
	path := cleanDroppedPath(raw)
	if path == "" {
		m.dispatch.DragLeave()
		return
	}
	m.dispatch.Drop(selection.FromPath(path))
}

// cleanDroppedPath undoes the quoting terminals apply when a file is dropped
// onto them.
func cleanDroppedPath(raw string) string {
	path := strings.TrimSpace(raw)
	if len(path) >= 2 {
		if (path[0] == '\'' && path[len(path)-1] == '\'') || (path[0] == '"' && path[len(path)-1] == '"') {
			return path[1 : len(path)-1]
		}
	}
	path = strings.TrimPrefix(path, "file://")
	return strings.ReplaceAll(path, `\ `, " ")
}
