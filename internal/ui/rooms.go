package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/text"
	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/marymwortman-lang/PureConnect/internal/protocol"
)

// RoomsTable renders the relay's open rooms. capacity is the most
// participants a room can hold.
func RoomsTable(rooms []protocol.RoomInfo, capacity int) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No open rooms")
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(prettytable.Row{"Room", "Seats", "Participants"})
	for _, r := range rooms {
		who := make([]string, 0, len(r.Participants))
		for _, p := range r.Participants {
			who = append(who, p.UserName)
		}
		t.AppendRow(prettytable.Row{r.ID, fmt.Sprintf("%d/%d", len(r.Participants), capacity), strings.Join(who, ", ")})
	}
	t.SortBy([]prettytable.SortBy{{Name: "Room", Mode: prettytable.Asc}})
	return t.Render()
}

// RoomLinkView is the box shown while waiting for the other side to join.
func RoomLinkView(room, link string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(IconRoom+" Room") + "\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", BoldStyle.Render("Name:"), room))
	if link != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", BoldStyle.Render(IconLink+" Link:"), link))
	}
	b.WriteString("\n" + MutedStyle.Render("Share the room name or link with the person you want to call."))
	return BoxStyle.Render(b.String())
}

// CallSummary describes a finished call.
type CallSummary struct {
	Room     string
	Peer     string
	Status   string
	Duration time.Duration
	Messages int
}

func CallSummaryView(s CallSummary) string {
	peer := s.Peer
	if peer == "" {
		peer = "nobody"
	}
	rows := [][]string{
		{"Status", s.Status},
		{"Room", s.Room},
		{"Peer", peer},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Chat messages", fmt.Sprintf("%d", s.Messages)},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
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
