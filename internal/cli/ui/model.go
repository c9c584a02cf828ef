// Package ui implements the interactive terminal frontend for a validation
// run: a scrollable bookmark list with live statuses, a progress bar and a
// summary footer.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linkmark/linkmark/internal/cli/hooks"
	"github.com/linkmark/linkmark/pkg/audit"
)

const listHeightMargin = 5 // header + progress + footer + padding

// Model is the state of the TUI application. It receives engine events as
// Bubble Tea messages relayed by the CLI hooks.
type Model struct {
	list        list.Model
	spinner     spinner.Model
	progress    progress.Model
	width       int
	height      int
	initialized bool
	appVersion  string

	items   []listItem
	itemMap map[string]int // bookmark id → index in items

	summary      Summary
	percent      float64
	phaseMessage string
	quitting     bool

	startTimes    map[string]time.Time
	debounceTimer *time.Timer
}

// listItem is a single bookmark row.
type listItem struct {
	id       string
	title    string
	url      string
	path     string
	status   audit.Status
	message  string
	duration time.Duration
}

// Summary holds the aggregated statistics displayed in the footer.
type Summary struct {
	Total      int
	Ignored    int
	Processed  int
	ErrorCount int
	StartTime  time.Time
}

// NewModel creates the initial TUI model.
func NewModel(appVersion string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	p := progress.New(progress.WithDefaultGradient())

	return Model{
		list:         l,
		spinner:      s,
		progress:     p,
		appVersion:   appVersion,
		items:        make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
		startTimes:   make(map[string]time.Time),
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: "Loading bookmarks...",
	}
}

// Init starts the spinner animation.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles user input and relayed engine events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - listHeightMargin
		if listHeight < 1 {
			listHeight = 1
		}
		m.list.SetSize(m.width, listHeight)
		m.progress.Width = m.width - 4
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			// The mainline treats TUI exit as a pause request so progress
			// is persisted.
			m.quitting = true
			m.phaseMessage = "Pausing..."
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case progress.FrameMsg:
		model, progressCmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		cmds = append(cmds, progressCmd)

	case hooks.ItemDiscoveredMsg:
		if _, exists := m.itemMap[msg.Item.ID]; !exists {
			m.items = append(m.items, listItem{
				id:     msg.Item.ID,
				title:  msg.Item.Title,
				url:    msg.Item.URL,
				path:   msg.Item.Path,
				status: audit.StatusPending,
			})
			m.itemMap[msg.Item.ID] = len(m.items) - 1
			cmds = append(cmds, m.debounceListUpdate())
		}
		if !m.quitting && m.phaseMessage == "Loading bookmarks..." {
			m.phaseMessage = "Checking..."
		}

	case hooks.ItemStatusUpdateMsg:
		idx, ok := m.itemMap[msg.Item.ID]
		if !ok {
			m.items = append(m.items, listItem{
				id:    msg.Item.ID,
				title: msg.Item.Title,
				url:   msg.Item.URL,
				path:  msg.Item.Path,
			})
			idx = len(m.items) - 1
			m.itemMap[msg.Item.ID] = idx
		}
		item := &m.items[idx]
		if msg.Status == audit.StatusChecking {
			m.startTimes[msg.Item.ID] = time.Now()
			item.duration = 0
		} else if isFinalStatus(msg.Status) {
			if started, found := m.startTimes[msg.Item.ID]; found {
				item.duration = time.Since(started)
				delete(m.startTimes, msg.Item.ID)
			}
		}
		item.status = msg.Status
		item.message = msg.Message
		cmds = append(cmds, m.debounceListUpdate())

	case hooks.ProgressMsg:
		m.summary.Total = msg.Progress.Total
		m.summary.Ignored = msg.Progress.Ignored
		m.summary.Processed = msg.Progress.Processed
		m.summary.ErrorCount = msg.Progress.Errors
		m.percent = float64(msg.Progress.Percent) / 100
		cmds = append(cmds, m.progress.SetPercent(m.percent))

	case hooks.RunCompleteMsg:
		switch msg.Report.Summary.Phase {
		case audit.RunPaused:
			m.phaseMessage = "Paused"
		case audit.RunCancelled:
			m.phaseMessage = "Cancelled"
		default:
			m.phaseMessage = "Complete"
		}
		m.summary.Total = msg.Report.Summary.Total
		m.summary.Ignored = msg.Report.Summary.Ignored
		m.summary.Processed = msg.Report.Summary.Processed
		m.summary.ErrorCount = msg.Report.Summary.ErrorCount

	case UpdateListMsg:
		items := make([]list.Item, len(m.items))
		for i, item := range m.items {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

// View renders the model.
func (m *Model) View() string {
	if m.quitting {
		return "Pausing run, progress saved. Run again to resume.\n"
	}
	if !m.initialized {
		return "Initializing..."
	}

	headerLeft := fmt.Sprintf("linkmark v%s", m.appVersion)
	headerRight := m.phaseMessage
	if m.phaseMessage != "Complete" && m.phaseMessage != "Paused" && m.phaseMessage != "Cancelled" {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	headerCenter := ""
	if headerWidth := m.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight); headerWidth > 0 {
		headerCenter = lipgloss.PlaceHorizontal(headerWidth, lipgloss.Center, " ")
	}
	header := HeaderStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, headerLeft, headerCenter, headerRight))

	progressView := " " + m.progress.View()

	elapsed := time.Since(m.summary.StartTime).Round(time.Second)
	footerLeft := fmt.Sprintf(
		"Checked: %d/%d | Ignored: %d | Broken: %d | Elapsed: %s",
		m.summary.Processed,
		m.summary.Total-m.summary.Ignored,
		m.summary.Ignored,
		m.summary.ErrorCount,
		elapsed,
	)
	footerRight := "q: pause & quit"
	footerCenter := ""
	if footerWidth := m.width - lipgloss.Width(footerLeft) - lipgloss.Width(footerRight); footerWidth > 0 {
		footerCenter = lipgloss.PlaceHorizontal(footerWidth, lipgloss.Center, " ")
	}
	footer := FooterStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Bottom, footerLeft, footerCenter, footerRight))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.list.View(),
		progressView,
		footer,
	)
}

func isFinalStatus(status audit.Status) bool {
	return status == audit.StatusSuccess ||
		status == audit.StatusFailed ||
		status == audit.StatusSkipped
}

// FilterValue implements the list.Item interface.
func (i listItem) FilterValue() string { return i.title }

// Title implements the list.Item interface.
func (i listItem) Title() string {
	if i.title != "" {
		return i.title
	}
	return i.url
}

// Description implements the list.Item interface.
func (i listItem) Description() string {
	var statusStyle lipgloss.Style
	statusIcon := " "
	switch i.status {
	case audit.StatusSuccess:
		statusStyle = StatusStyleSuccess
		statusIcon = "✓"
	case audit.StatusFailed:
		statusStyle = StatusStyleFailed
		statusIcon = "✗"
	case audit.StatusSkipped:
		statusStyle = StatusStyleSkipped
		statusIcon = "S"
	case audit.StatusChecking:
		statusStyle = StatusStyleChecking
		statusIcon = "…"
	default:
		statusStyle = StatusStylePending
	}

	statusStr := statusStyle.Render(fmt.Sprintf("[%s]", statusIcon))
	details := ""
	switch i.status {
	case audit.StatusFailed:
		details = i.message
	case audit.StatusSkipped:
		details = "ignored by filter"
	case audit.StatusSuccess:
		if i.duration > 0 {
			details = formatDuration(i.duration)
		}
	case audit.StatusChecking:
		details = i.url
	default:
		details = i.path
	}
	return fmt.Sprintf("%s %s", statusStr, details)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// UpdateListMsg signals that the list component should refresh its items.
type UpdateListMsg struct{}

const listUpdateDebounceDuration = 50 * time.Millisecond

// debounceListUpdate coalesces rapid status changes into at most ~20 list
// refreshes per second.
func (m *Model) debounceListUpdate() tea.Cmd {
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.NewTimer(listUpdateDebounceDuration)
	return func() tea.Msg {
		<-m.debounceTimer.C
		return UpdateListMsg{}
	}
}

// Styles and colors for the TUI.
const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("24") // Deep blue

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("238")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("24")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess  = lipgloss.Color("40")
	ColorStatusFailed   = lipgloss.Color("196")
	ColorStatusSkipped  = lipgloss.Color("214")
	ColorStatusPending  = lipgloss.Color("244")
	ColorStatusChecking = lipgloss.Color("39")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess  = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed   = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleSkipped  = lipgloss.NewStyle().Foreground(ColorStatusSkipped)
	StatusStylePending  = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleChecking = lipgloss.NewStyle().Foreground(ColorStatusChecking)
)
