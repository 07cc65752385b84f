package docparse

import (
	"strings"

	"github.com/DocQueryAI/docquery-mvp/engine/domain"
)

// Pages flattens an AnalyzeResult into one text block per page: every line
// in reading order followed by a line break, then each table anchored to the
// page with cell contents separated by " | ". Tables are appended after the
// page's line text, not interleaved with it. Trailing whitespace is trimmed
// per page.
func Pages(res *AnalyzeResult) []domain.PageBlock {
	if res == nil {
		return nil
	}

	blocks := make([]domain.PageBlock, 0, len(res.Pages))
	for _, page := range res.Pages {
		var b strings.Builder
		for _, line := range page.Lines {
			b.WriteString(line.Content)
			b.WriteByte('\n')
		}
		for _, table := range res.Tables {
			if tablePage(table) != page.PageNumber {
				continue
			}
			for _, cell := range table.Cells {
				b.WriteString(cell.Content)
				b.WriteString(" | ")
			}
			b.WriteByte('\n')
		}
		blocks = append(blocks, domain.PageBlock{
			Text:   strings.TrimRight(b.String(), " \t\n\r"),
			PageNo: page.PageNumber,
		})
	}
	return blocks
}

// tablePage returns the page a table is anchored to, or 0 if unanchored.
func tablePage(t Table) int {
	if len(t.BoundingRegions) == 0 {
		return 0
	}
	return t.BoundingRegions[0].PageNumber
}
