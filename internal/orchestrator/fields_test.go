package orchestrator

import (
	"context"
	"testing"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_ReportsCoverage(t *testing.T) {
	h := newHarness(t, tabular.Grid{
		{"name", "city", "email"},
		{"Ada", "London", "ada@example.test"},
		{"Linus", "Helsinki", "linus@example.test"},
	}, Config{})

	rep, err := h.runner.Fields(context.Background(), Request{TemplateID: "tmpl-1", DataSourceID: "sheet-1"})
	require.NoError(t, err)

	assert.Equal(t, "Welcome Letter", rep.TemplateName)
	assert.Equal(t, "A:Z", rep.Range)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, []string{"name", "city", "email"}, rep.Headers)
	assert.Equal(t, merge.FieldCoverage{
		Tokens:        []string{"name", "city", "missing"},
		Matched:       []string{"name", "city"},
		Unmatched:     []string{"missing"},
		UnusedHeaders: []string{"email"},
	}, rep.Coverage)
	assert.Zero(t, h.producer.callCount(), "fields never produces artifacts")
}

func TestFields_HeaderOnlyGrid(t *testing.T) {
	h := newHarness(t, tabular.Grid{{"name"}}, Config{})

	rep, err := h.runner.Fields(context.Background(), Request{TemplateID: "tmpl-1", DataSourceID: "sheet-1"})
	require.NoError(t, err)
	assert.Zero(t, rep.Rows)
	assert.Equal(t, []string{"name"}, rep.Coverage.Matched)
}

func TestFields_TemplateError(t *testing.T) {
	h := newHarness(t, peopleGrid(1), Config{MaxAttempts: 1})
	h.tmpl.err = &merge.TemplateUnavailableError{TemplateID: "tmpl-1", Reason: merge.TemplateNotFound}

	_, err := h.runner.Fields(context.Background(), Request{TemplateID: "tmpl-1", DataSourceID: "sheet-1"})
	var tue *merge.TemplateUnavailableError
	assert.ErrorAs(t, err, &tue)
}

func TestFields_BadRange(t *testing.T) {
	h := newHarness(t, peopleGrid(1), Config{})
	_, err := h.runner.Fields(context.Background(), Request{TemplateID: "tmpl-1", DataSourceID: "sheet-1", Range: "Z:A"})
	assert.Error(t, err)
}
