package export

import (
	"strings"

	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/pterm/pterm"
)

const (
	previewLength   = 48
	previewEllipsis = "..."
	missingAnalysis = "-"
)

// RenderTable formats records as a terminal table with a header row.
func RenderTable(records []hands.HandRecord) (string, error) {
	data := pterm.TableData{{"ID", "Date", "Time", "Hand", "Analysis"}}
	for _, record := range records {
		analysis := missingAnalysis
		if record.HasAnalysis() {
			analysis = preview(record.AnalysisText())
		}
		data = append(data, []string{
			record.ID.String(),
			record.Date,
			record.Time,
			preview(record.Text),
			analysis,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// preview flattens text to one line and caps it at previewLength runes.
func preview(text string) string {
	flattened := strings.Join(strings.Fields(text), " ")
	runes := []rune(flattened)
	if len(runes) <= previewLength {
		return flattened
	}
	return string(runes[:previewLength-len(previewEllipsis)]) + previewEllipsis
}
