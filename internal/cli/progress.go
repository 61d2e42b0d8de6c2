package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/umccr/holmes-report/internal/dispatch"
)

const refreshInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers a refresh of the batch counters.
type tickMsg time.Time

// runDoneMsg reports that the grouping run returned.
type runDoneMsg struct {
	err error
}

// progressModel shows how far a fingerprint batch has got.
type progressModel struct {
	tracker  *dispatch.Progress
	snap     dispatch.ProgressSnapshot
	started  time.Time
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(tracker *dispatch.Progress) progressModel {
	return progressModel{
		tracker: tracker,
		started: time.Now(),
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.snap = m.tracker.Snapshot()
		return m, tickCmd()

	case runDoneMsg:
		m.snap = m.tracker.Snapshot()
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.snap.Total == 0 {
		return m.theme.statusStyle().Render("[preparing]") + " finding this batch's fingerprints...\n"
	}

	finished := m.snap.Completed + m.snap.Failed
	pct := float64(finished) / float64(m.snap.Total)

	status := m.theme.statusStyle().Render("[checking]")
	counts := fmt.Sprintf("%d/%d fingerprints, %d running", finished, m.snap.Total, m.snap.Active)
	elapsed := time.Since(m.started).Truncate(time.Second)
	hint := m.theme.hintStyle().Render(fmt.Sprintf("%s elapsed, press q to abandon the batch", elapsed))

	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(pct), counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nAbandoning batch, waiting for running checks to stop...\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Grouping failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render(fmt.Sprintf("✓ Checked %d fingerprints\n", m.snap.Completed))
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runWithProgress runs work while drawing the batch progress. Quitting the
// display cancels work; the error work returns is always the result.
func runWithProgress(ctx context.Context, tracker *dispatch.Progress, work func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(tracker))

	result := make(chan error, 1)
	go func() {
		err := work(ctx)
		result <- err
		p.Send(runDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return fmt.Errorf("progress UI error: %w", err)
	}
	// Quitting early cancels the batch and waits for it to unwind.
	cancel()
	return <-result
}
