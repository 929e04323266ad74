package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dusk-indust/mailmerge/internal/export"
	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// jobRequest is the body of create and fields requests.
type jobRequest struct {
	TemplateID   string `json:"templateId" binding:"required"`
	DataSourceID string `json:"dataSourceId" binding:"required"`
	Range        string `json:"range"`
}

func (r jobRequest) toRequest() orchestrator.Request {
	return orchestrator.Request{TemplateID: r.TemplateID, DataSourceID: r.DataSourceID, Range: r.Range}
}

// --- Job Handlers ---

// createJobHandler stores a pending job and starts it in the background.
func (s *Server) createJobHandler(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}
	job, err := s.runner.Submit(c.Request.Context(), req.toRequest())
	if err != nil {
		respondWithErr(c, err)
		return
	}
	s.runner.Start(job.ID, nil)

	c.Header("Location", "/api/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

// listJobsHandler returns one page of jobs.
func (s *Server) listJobsHandler(c *gin.Context) {
	filter := jobs.ListFilter{
		Status:     jobs.Status(c.Query("status")),
		TemplateID: c.Query("templateId"),
		PageToken:  c.Query("pageToken"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid status filter.", gin.H{"status": filter.Status})
		return
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid pageSize parameter.", gin.H{"pageSize": v})
			return
		}
		filter.PageSize = n
	}

	res, err := s.runner.Store().List(c.Request.Context(), filter)
	if err != nil {
		respondWithErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// getJobHandler returns the current job snapshot.
func (s *Server) getJobHandler(c *gin.Context) {
	job, err := s.runner.Store().Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondWithErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// cancelJobHandler requests cancellation and returns the snapshot. A
// running job may still be processing when the response is sent.
func (s *Server) cancelJobHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("job_id")
	if err := s.runner.Cancel(ctx, id); err != nil {
		respondWithErr(c, err)
		return
	}
	job, err := s.runner.Store().Get(ctx, id)
	if err != nil {
		respondWithErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// jobEventsHandler streams progress events until the job is terminal or
// the client goes away. The first event is the current snapshot.
func (s *Server) jobEventsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("job_id")

	// Subscribe before reading the snapshot so no transition is missed.
	events, unsubscribe := s.events.Subscribe(id)
	defer unsubscribe()

	job, err := s.runner.Store().Get(ctx, id)
	if err != nil {
		respondWithErr(c, err)
		return
	}

	sw := NewSSEWriter(c.Writer)
	sw.Init()
	snapshot := orchestrator.ProgressEvent{
		JobID:     job.ID,
		Kind:      orchestrator.EventStatus,
		Status:    job.Status,
		Percent:   job.Progress,
		Processed: job.ProcessedRecords,
		Total:     job.TotalRecords,
		Message:   job.ErrorMessage,
		Time:      time.Now().UTC(),
	}
	if err := sw.WriteEvent(snapshot); err != nil || snapshot.Terminal() {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sw.WriteEvent(ev); err != nil {
				s.logger.Debug("event stream closed", zap.String("job_id", id), zap.Error(err))
				return
			}
			if ev.Terminal() {
				return
			}
		case <-ticker.C:
			if err := sw.Ping(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// manifestHandler exports the job's artifact manifest.
func (s *Server) manifestHandler(c *gin.Context) {
	job, err := s.runner.Store().Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondWithErr(c, err)
		return
	}
	if c.Query("download") != "" {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="manifest-%s.json"`, job.ID))
	}
	c.JSON(http.StatusOK, export.ExportJob(*job, time.Now()))
}

// --- Template Handlers ---

// fieldsHandler compares template tokens with data source headers.
func (s *Server) fieldsHandler(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}
	rep, err := s.runner.Fields(c.Request.Context(), req.toRequest())
	if err != nil {
		respondWithErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// lineageHandler lists the jobs and artifacts produced from a template, as
// JSON or, with format=mermaid, as a diagram.
func (s *Server) lineageHandler(c *gin.Context) {
	if s.lineage == nil {
		RespondWithError(c, http.StatusNotImplemented, ErrorCodeNotImplemented, "Lineage is not enabled.", nil)
		return
	}
	id := c.Param("template_id")
	g, err := s.lineage.Snapshot(c.Request.Context(), id)
	if err != nil {
		respondWithErr(c, err)
		return
	}
	if len(g.Templates) == 0 {
		RespondWithError(c, http.StatusNotFound, ErrorCodeNotFound, "No lineage recorded for template.", gin.H{"templateId": id})
		return
	}
	if c.Query("format") == "mermaid" {
		c.String(http.StatusOK, export.RenderMermaid(g))
		return
	}
	c.JSON(http.StatusOK, g)
}
