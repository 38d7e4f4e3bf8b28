// Package ui renders the call presence view and maps keys to call commands.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/domain"
)

const commandTimeout = 5 * time.Second

// Controller is the part of the orchestrator the view drives.
type Controller interface {
	StartCall(ctx context.Context) error
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	HangUp(ctx context.Context) error
	ToggleMute(ctx context.Context) (bool, error)
	ToggleSpeaker(ctx context.Context) (bool, error)
	SetForeground(ctx context.Context, fg bool) error
	Snapshot() orch.Snapshot
}

// SnapshotMsg carries a published session snapshot into the program.
type SnapshotMsg orch.Snapshot

type resultMsg struct {
	action string
	err    error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	onStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type Model struct {
	ctrl   Controller
	snap   orch.Snapshot
	status string
	err    error
}

func NewModel(ctrl Controller) Model {
	return Model{ctrl: ctrl, snap: ctrl.Snapshot()}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = orch.Snapshot(msg)
		return m, nil
	case resultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.action
		} else {
			m.status = ""
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c":
		return m, m.run("calling", m.ctrl.StartCall)
	case "a":
		return m, m.run("accepted", m.ctrl.Accept)
	case "r":
		return m, m.run("rejected", m.ctrl.Reject)
	case "h":
		return m, m.run("hung up", m.ctrl.HangUp)
	case "m":
		return m, m.toggle("muted", "unmuted", m.ctrl.ToggleMute)
	case "s":
		return m, m.toggle("speaker on", "speaker off", m.ctrl.ToggleSpeaker)
	case "b":
		fg := !m.snap.Foreground
		label := "background"
		if fg {
			label = "foreground"
		}
		return m, m.run(label, func(ctx context.Context) error {
			return m.ctrl.SetForeground(ctx, fg)
		})
	}
	return m, nil
}

func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return resultMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) toggle(on, off string, fn func(context.Context) (bool, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		v, err := fn(ctx)
		action := off
		if v {
			action = on
		}
		return resultMsg{action: action, err: err}
	}
}

func (m Model) View() string {
	s := m.snap
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render(fmt.Sprintf("%s  ⇄  %s", s.Local, s.Remote)))
	row(&b, "call", stateLabel(s))
	row(&b, "signaling", flag(s.SignalingOpen, "connected", "offline"))
	row(&b, "partner", flag(s.PartnerPresent, "online", "offline"))
	if s.State == domain.StateActive {
		row(&b, "microphone", flag(!s.Muted, "live", "muted"))
		row(&b, "speaker", flag(s.SpeakerRouted, "on", "off"))
		row(&b, "remote audio", flag(s.RemoteAudio, "playing", "waiting"))
	}
	row(&b, "wake lock", flag(s.WakeLockHeld, "held", "released"))
	if m.err != nil {
		fmt.Fprintf(&b, "\n%s\n", errStyle.Render(m.err.Error()))
	} else if m.status != "" {
		fmt.Fprintf(&b, "\n%s\n", m.status)
	}
	fmt.Fprintf(&b, "\n%s\n", helpStyle.Render(help(s)))
	return b.String()
}

func stateLabel(s orch.Snapshot) string {
	switch s.State {
	case domain.StateIncomingRinging:
		return onStyle.Render(fmt.Sprintf("%s is calling", s.Remote))
	case domain.StateOutgoingRinging:
		return fmt.Sprintf("calling %s", s.Remote)
	case domain.StateActive:
		return onStyle.Render("in call")
	}
	return s.State.String()
}

func help(s orch.Snapshot) string {
	switch s.State {
	case domain.StateIncomingRinging:
		return "a accept • r reject • q quit"
	case domain.StateOutgoingRinging:
		return "h hang up • q quit"
	case domain.StateActive:
		return "m mute • s speaker • b fg/bg • h hang up • q quit"
	}
	return "c call • b fg/bg • q quit"
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s%s\n", labelStyle.Render(label), value)
}

func flag(v bool, on, off string) string {
	if v {
		return onStyle.Render(on)
	}
	return offStyle.Render(off)
}
