package mcptools

import (
	"context"
	"fmt"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/lineage"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MergeService holds the runner and lineage store used by the MCP tool
// handlers.
type MergeService struct {
	runner  *orchestrator.Runner
	lineage lineage.Store
}

// NewMergeService creates a MergeService. lin may be nil, which leaves the
// template_lineage tool unregistered.
func NewMergeService(runner *orchestrator.Runner, lin lineage.Store) *MergeService {
	return &MergeService{runner: runner, lineage: lin}
}

// StartMerge submits a job and either starts it in the background or, with
// wait set, runs it to completion before returning.
func (s *MergeService) StartMerge(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartMergeInput,
) (*mcp.CallToolResult, JobOutput, error) {
	job, err := s.runner.Submit(ctx, orchestrator.Request{
		TemplateID:   input.TemplateID,
		DataSourceID: input.DataSourceID,
		Range:        input.Range,
	})
	if err != nil {
		return nil, JobOutput{}, err
	}
	if !input.Wait {
		s.runner.Start(job.ID, nil)
		return nil, JobOutput{Job: toJobView(job)}, nil
	}

	// A failed job is still a result; its error is in the job record.
	final, err := s.runner.Run(ctx, job.ID, nil)
	if final == nil {
		return nil, JobOutput{}, err
	}
	return nil, JobOutput{Job: toJobView(final)}, nil
}

// GetJob returns a job snapshot.
func (s *MergeService) GetJob(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobIDInput,
) (*mcp.CallToolResult, JobOutput, error) {
	job, err := s.runner.Store().Get(ctx, input.JobID)
	if err != nil {
		return nil, JobOutput{}, err
	}
	return nil, JobOutput{Job: toJobView(job)}, nil
}

// CancelJob requests cancellation and returns the snapshot.
func (s *MergeService) CancelJob(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobIDInput,
) (*mcp.CallToolResult, JobOutput, error) {
	if err := s.runner.Cancel(ctx, input.JobID); err != nil {
		return nil, JobOutput{}, err
	}
	job, err := s.runner.Store().Get(ctx, input.JobID)
	if err != nil {
		return nil, JobOutput{}, err
	}
	return nil, JobOutput{Job: toJobView(job)}, nil
}

// ListJobs returns one page of jobs in creation order.
func (s *MergeService) ListJobs(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListJobsInput,
) (*mcp.CallToolResult, ListJobsOutput, error) {
	status := jobs.Status(input.Status)
	if status != "" && !status.Valid() {
		return nil, ListJobsOutput{}, fmt.Errorf("unknown status %q", input.Status)
	}
	res, err := s.runner.Store().List(ctx, jobs.ListFilter{
		Status:     status,
		TemplateID: input.TemplateID,
		PageSize:   input.PageSize,
		PageToken:  input.PageToken,
	})
	if err != nil {
		return nil, ListJobsOutput{}, err
	}
	out := ListJobsOutput{
		Jobs:          make([]JobView, 0, len(res.Jobs)),
		TotalSize:     res.TotalSize,
		NextPageToken: res.NextPageToken,
	}
	for i := range res.Jobs {
		out.Jobs = append(out.Jobs, toJobView(&res.Jobs[i]))
	}
	return nil, out, nil
}

// ListFields reports which template tokens the data source can fill.
func (s *MergeService) ListFields(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListFieldsInput,
) (*mcp.CallToolResult, ListFieldsOutput, error) {
	rep, err := s.runner.Fields(ctx, orchestrator.Request{
		TemplateID:   input.TemplateID,
		DataSourceID: input.DataSourceID,
		Range:        input.Range,
	})
	if err != nil {
		return nil, ListFieldsOutput{}, err
	}
	headers := rep.Headers
	if headers == nil {
		headers = []string{}
	}
	return nil, ListFieldsOutput{
		TemplateName:  rep.TemplateName,
		Headers:       headers,
		Rows:          rep.Rows,
		Tokens:        rep.Coverage.Tokens,
		Matched:       rep.Coverage.Matched,
		Unmatched:     rep.Coverage.Unmatched,
		UnusedHeaders: rep.Coverage.UnusedHeaders,
	}, nil
}

// TemplateLineage lists the jobs and artifacts produced from a template.
func (s *MergeService) TemplateLineage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TemplateLineageInput,
) (*mcp.CallToolResult, TemplateLineageOutput, error) {
	if input.TemplateID == "" {
		return nil, TemplateLineageOutput{}, fmt.Errorf("templateId is required")
	}
	g, err := s.lineage.Snapshot(ctx, input.TemplateID)
	if err != nil {
		return nil, TemplateLineageOutput{}, err
	}

	byJob := make(map[string][]ArtifactView)
	for _, a := range g.Artifacts {
		byJob[a.JobID] = append(byJob[a.JobID], ArtifactView{Sequence: a.Sequence, Name: a.Name, URL: a.URL})
	}
	out := TemplateLineageOutput{TemplateID: input.TemplateID, Jobs: make([]LineageJobView, 0, len(g.Jobs))}
	for _, j := range g.Jobs {
		arts := byJob[j.ID]
		if arts == nil {
			arts = []ArtifactView{}
		}
		out.Jobs = append(out.Jobs, LineageJobView{
			ID:          j.ID,
			Status:      j.Status,
			CompletedAt: formatTime(&j.CompletedAt),
			Artifacts:   arts,
		})
	}
	return nil, out, nil
}
