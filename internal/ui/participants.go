package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/meshcall/internal/session"
)

// Participant is one row of the call view.
type Participant struct {
	ID    string
	Name  string
	Self  bool
	State session.State

	// Inbound media currently rendered.
	Camera bool
	Audio  bool
	Screen bool

	// Indicators reported by the peer itself.
	Muted   bool
	Sharing bool
}

func (p Participant) link() string {
	if p.Self {
		return "you"
	}
	return p.State.String()
}

func (p Participant) camera() string {
	if p.Camera {
		return IconCamera + " on"
	}
	return MutedStyle.Render("off")
}

func (p Participant) mic() string {
	switch {
	case p.Muted:
		return IconMuted + " muted"
	case p.Audio:
		return IconMic + " on"
	}
	return MutedStyle.Render("-")
}

func (p Participant) screen() string {
	if p.Screen || p.Sharing {
		return IconScreen + " sharing"
	}
	return MutedStyle.Render("-")
}

// ParticipantTable renders participants with lipgloss/table.
func ParticipantTable(participants []Participant) string {
	if len(participants) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	rows := make([][]string, 0, len(participants))
	for _, p := range participants {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		rows = append(rows, []string{truncate(name, 24), truncate(p.ID, 8), p.link(), p.camera(), p.mic(), p.screen()})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "ID", "Link", "Camera", "Mic", "Screen").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// CallSummary is printed after leaving a call.
type CallSummary struct {
	RoomID   string
	Duration time.Duration
	Met      []string
	Peak     int
	Reason   string
}

// CallSummaryView renders the summary with go-pretty.
func CallSummaryView(s CallSummary) string {
	t := prettytable.NewWriter()
	t.SetTitle("Call Summary")
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Room", s.RoomID},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Participants met", len(s.Met)},
		{"Largest call", s.Peak},
		{"Ended", s.Reason},
	})
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Fprintln(Output, CallSummaryView(s))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
