package google

import "strings"

// document is the subset of a Docs API document the engine reads.
type document struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Body       struct {
		Content []structuralElement `json:"content"`
	} `json:"body"`
}

type structuralElement struct {
	StartIndex int        `json:"startIndex"`
	EndIndex   int        `json:"endIndex"`
	Paragraph  *paragraph `json:"paragraph,omitempty"`
	Table      *table     `json:"table,omitempty"`
}

type paragraph struct {
	Elements []struct {
		TextRun *struct {
			Content string `json:"content"`
		} `json:"textRun,omitempty"`
	} `json:"elements"`
}

type table struct {
	TableRows []struct {
		TableCells []struct {
			Content []structuralElement `json:"content"`
		} `json:"tableCells"`
	} `json:"tableRows"`
}

// Text flattens the document body. Paragraph runs are concatenated; each
// table cell is followed by a space and each table row by a newline.
func (d *document) Text() string {
	var b strings.Builder
	writeElements(&b, d.Body.Content)
	return b.String()
}

func writeElements(b *strings.Builder, elems []structuralElement) {
	for _, el := range elems {
		switch {
		case el.Paragraph != nil:
			for _, pe := range el.Paragraph.Elements {
				if pe.TextRun != nil {
					b.WriteString(pe.TextRun.Content)
				}
			}
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					writeElements(b, cell.Content)
					b.WriteByte(' ')
				}
				b.WriteByte('\n')
			}
		}
	}
}

// endIndex is the index just past the last body element.
func (d *document) endIndex() int {
	end := 0
	for _, el := range d.Body.Content {
		if el.EndIndex > end {
			end = el.EndIndex
		}
	}
	return end
}
