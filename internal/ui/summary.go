package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warptalk/internal/transcript"
)

const transcriptColumnWidth = 60

// CallSummary is printed once the call view exits.
type CallSummary struct {
	RoomID   string
	Duration time.Duration
	Entries  []transcript.Entry
}

func speakerLabel(s transcript.Speaker) string {
	if s == transcript.SpeakerLocal {
		return "You"
	}
	return "Peer"
}

// TranscriptTable renders the transcript with one row per entry. Entries
// that never became final are marked.
func TranscriptTable(entries []transcript.Entry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Time", "Speaker", "Text"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, WidthMax: transcriptColumnWidth},
	})

	for i, e := range entries {
		line := e.Text
		if !e.IsFinal {
			line += " …"
		}
		t.AppendRow(table.Row{i + 1, e.Timestamp.Local().Format("15:04:05"), speakerLabel(e.Speaker), line})
	}
	if len(entries) == 0 {
		t.AppendRow(table.Row{"", "", "", "(nothing was said)"})
	}
	return t.Render()
}

func CallSummaryView(s CallSummary) string {
	var local, remote int
	for _, e := range s.Entries {
		if e.Speaker == transcript.SpeakerLocal {
			local++
		} else {
			remote++
		}
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("📊 Call Summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", s.RoomID},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Your segments", local},
		{"Peer segments", remote},
	})
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
	fmt.Println(TranscriptTable(s.Entries))
}
