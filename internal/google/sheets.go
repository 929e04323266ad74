package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dusk-indust/mailmerge/internal/tabular"
)

// SheetsSource reads data grids from Google Sheets.
type SheetsSource struct {
	c *Client
}

// NewSheetsSource returns a grid source backed by c.
func NewSheetsSource(c *Client) *SheetsSource {
	return &SheetsSource{c: c}
}

type valueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// FetchGrid reads the formatted cell values of rng. Formulas arrive already
// evaluated; trailing empty cells are omitted by the API and padded later by
// the loader.
func (s *SheetsSource) FetchGrid(ctx context.Context, spreadsheetID string, rng tabular.Range) (tabular.Grid, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?majorDimension=ROWS&valueRenderOption=FORMATTED_VALUE",
		s.c.sheetsURL, url.PathEscape(spreadsheetID), url.PathEscape(rng.String()))

	var vr valueRange
	if err := s.c.do(ctx, "sheets", http.MethodGet, u, nil, &vr); err != nil {
		return nil, fmt.Errorf("read spreadsheet %q: %w", spreadsheetID, err)
	}
	return tabular.Grid(vr.Values), nil
}
