package orchestrator

import (
	"context"
	"fmt"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/tabular"
)

// FieldReport shows how a template's tokens line up with a data source's
// headers before anything is produced.
type FieldReport struct {
	TemplateID   string              `json:"templateId"`
	TemplateName string              `json:"templateName"`
	DataSourceID string              `json:"dataSourceId"`
	Range        string              `json:"range"`
	Headers      []string            `json:"headers"`
	Rows         int                 `json:"rows"`
	Coverage     merge.FieldCoverage `json:"coverage"`
}

// Fields fetches the template and the grid for req and compares tokens
// with headers. A header-only grid is reported with zero rows.
func (r *Runner) Fields(ctx context.Context, req Request) (*FieldReport, error) {
	rngText := req.Range
	if rngText == "" {
		rngText = r.cfg.DefaultRange
	}
	rng, err := tabular.ParseRange(rngText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	policy := retryPolicy{
		timeout:     r.cfg.CallTimeout,
		maxAttempts: r.cfg.MaxAttempts,
		backoff:     r.cfg.RetryBackoff,
		logger:      r.logger,
	}

	var tmpl merge.Template
	if err := policy.do(ctx, "fetch template", func(ctx context.Context) error {
		var ferr error
		tmpl, ferr = r.templates.FetchTemplate(ctx, req.TemplateID)
		return ferr
	}); err != nil {
		return nil, err
	}
	var grid tabular.Grid
	if err := policy.do(ctx, "fetch grid", func(ctx context.Context) error {
		var ferr error
		grid, ferr = r.grids.FetchGrid(ctx, req.DataSourceID, rng)
		return ferr
	}); err != nil {
		return nil, fmt.Errorf("load data source %q: %w", req.DataSourceID, err)
	}

	headers := tabular.Headers(grid)
	rows := 0
	if len(grid) > 1 {
		rows = len(grid) - 1
	}
	return &FieldReport{
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.DisplayName,
		DataSourceID: req.DataSourceID,
		Range:        rng.String(),
		Headers:      headers,
		Rows:         rows,
		Coverage:     merge.Coverage(merge.Tokens(tmpl.RawContent), headers),
	}, nil
}
