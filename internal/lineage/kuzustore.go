//go:build cgo

package lineage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements Store on KuzuDB. It requires CGO because the go-kuzu
// driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory database.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore opens (or creates) a database directory at dbPath.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	// KuzuDB creates the leaf directory itself.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Template(
		id STRING,
		name STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Job(
		id STRING,
		template_id STRING,
		data_source_id STRING,
		status STRING,
		total_records INT64,
		failed_records INT64,
		completed_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Artifact(
		id STRING,
		job_id STRING,
		seq INT64,
		name STRING,
		url STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS MERGED_BY(FROM Template TO Job)`,
	`CREATE REL TABLE IF NOT EXISTS PRODUCED(FROM Job TO Artifact)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// RecordJob upserts the nodes with MERGE so a repeated call is a no-op.
func (s *KuzuStore) RecordJob(_ context.Context, tmpl merge.Template, job jobs.Job) error {
	t, j, arts := nodesFor(tmpl, job)

	if err := s.exec(
		`MERGE (t:Template {id: $id})
		ON CREATE SET t.name = $name
		ON MATCH SET t.name = $name`,
		map[string]any{"id": t.ID, "name": t.Name},
	); err != nil {
		return err
	}

	var completed int64
	if !j.CompletedAt.IsZero() {
		completed = j.CompletedAt.UnixNano()
	}
	if err := s.exec(
		`MERGE (j:Job {id: $id})
		ON CREATE SET j.template_id = $tid, j.data_source_id = $ds, j.status = $status,
			j.total_records = $total, j.failed_records = $failed, j.completed_at = $done
		ON MATCH SET j.template_id = $tid, j.data_source_id = $ds, j.status = $status,
			j.total_records = $total, j.failed_records = $failed, j.completed_at = $done`,
		map[string]any{
			"id":     j.ID,
			"tid":    j.TemplateID,
			"ds":     j.DataSourceID,
			"status": j.Status,
			"total":  int64(j.TotalRecords),
			"failed": int64(j.FailedRecords),
			"done":   completed,
		},
	); err != nil {
		return err
	}
	if err := s.exec(
		`MATCH (t:Template {id: $tid}), (j:Job {id: $jid})
		MERGE (t)-[:MERGED_BY]->(j)`,
		map[string]any{"tid": t.ID, "jid": j.ID},
	); err != nil {
		return err
	}

	for _, a := range arts {
		if err := s.exec(
			`MERGE (a:Artifact {id: $id})
			ON CREATE SET a.job_id = $jid, a.seq = $seq, a.name = $name, a.url = $url
			ON MATCH SET a.job_id = $jid, a.seq = $seq, a.name = $name, a.url = $url`,
			map[string]any{
				"id":   a.ID,
				"jid":  a.JobID,
				"seq":  int64(a.Sequence),
				"name": a.Name,
				"url":  a.URL,
			},
		); err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (j:Job {id: $jid}), (a:Artifact {id: $aid})
			MERGE (j)-[:PRODUCED]->(a)`,
			map[string]any{"jid": a.JobID, "aid": a.ID},
		); err != nil {
			return err
		}
	}
	return nil
}

// ---------- Read operations ----------

// Templates returns every template node sorted by ID.
func (s *KuzuStore) Templates(_ context.Context) ([]TemplateNode, error) {
	rows, err := s.query("MATCH (t:Template) RETURN t.id, t.name ORDER BY t.id", nil)
	if err != nil {
		return nil, err
	}
	out := make([]TemplateNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, TemplateNode{ID: toString(r[0]), Name: toString(r[1])})
	}
	return out, nil
}

// jobColumns is the projection decoded by rowToJob.
const jobColumns = `j.id, j.template_id, j.data_source_id, j.status,
	j.total_records, j.failed_records, j.completed_at`

// JobsForTemplate follows MERGED_BY edges from the template, oldest first.
func (s *KuzuStore) JobsForTemplate(_ context.Context, templateID string) ([]JobNode, error) {
	rows, err := s.query(
		`MATCH (t:Template {id: $tid})-[:MERGED_BY]->(j:Job)
		RETURN `+jobColumns+`
		ORDER BY j.completed_at, j.id`,
		map[string]any{"tid": templateID},
	)
	if err != nil {
		return nil, err
	}
	return rowsToJobs(rows), nil
}

// ArtifactsForTemplate walks Template -> Job -> Artifact.
func (s *KuzuStore) ArtifactsForTemplate(_ context.Context, templateID string) ([]ArtifactNode, error) {
	rows, err := s.query(
		`MATCH (t:Template {id: $tid})-[:MERGED_BY]->(j:Job)-[:PRODUCED]->(a:Artifact)
		RETURN a.id, a.job_id, a.seq, a.name, a.url
		ORDER BY j.completed_at, j.id, a.seq`,
		map[string]any{"tid": templateID},
	)
	if err != nil {
		return nil, err
	}
	return rowsToArtifacts(rows), nil
}

// Snapshot dumps the graph, optionally limited to one template.
func (s *KuzuStore) Snapshot(ctx context.Context, templateID string) (*Graph, error) {
	g := &Graph{}
	if templateID != "" {
		ts, err := s.query(
			"MATCH (t:Template {id: $tid}) RETURN t.id, t.name",
			map[string]any{"tid": templateID},
		)
		if err != nil {
			return nil, err
		}
		for _, r := range ts {
			g.Templates = append(g.Templates, TemplateNode{ID: toString(r[0]), Name: toString(r[1])})
		}
		if g.Jobs, err = s.JobsForTemplate(ctx, templateID); err != nil {
			return nil, err
		}
		if g.Artifacts, err = s.ArtifactsForTemplate(ctx, templateID); err != nil {
			return nil, err
		}
		g.Edges = edgesFor(g)
		return g, nil
	}

	var err error
	if g.Templates, err = s.Templates(ctx); err != nil {
		return nil, err
	}
	rows, err := s.query("MATCH (j:Job) RETURN "+jobColumns+" ORDER BY j.completed_at, j.id", nil)
	if err != nil {
		return nil, err
	}
	g.Jobs = rowsToJobs(rows)
	rows, err = s.query(
		`MATCH (j:Job)-[:PRODUCED]->(a:Artifact)
		RETURN a.id, a.job_id, a.seq, a.name, a.url
		ORDER BY j.completed_at, j.id, a.seq`,
		nil,
	)
	if err != nil {
		return nil, err
	}
	g.Artifacts = rowsToArtifacts(rows)
	g.Edges = edgesFor(g)
	return g, nil
}

// ---------- Helpers ----------

// exec runs a parameterized write statement and discards the result.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all rows in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func rowsToJobs(rows [][]any) []JobNode {
	out := make([]JobNode, 0, len(rows))
	for _, r := range rows {
		j := JobNode{
			ID:            toString(r[0]),
			TemplateID:    toString(r[1]),
			DataSourceID:  toString(r[2]),
			Status:        toString(r[3]),
			TotalRecords:  toInt(r[4]),
			FailedRecords: toInt(r[5]),
		}
		if ns := toInt64(r[6]); ns != 0 {
			j.CompletedAt = time.Unix(0, ns).UTC()
		}
		out = append(out, j)
	}
	return out
}

func rowsToArtifacts(rows [][]any) []ArtifactNode {
	out := make([]ArtifactNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, ArtifactNode{
			ID:       toString(r[0]),
			JobID:    toString(r[1]),
			Sequence: toInt(r[2]),
			Name:     toString(r[3]),
			URL:      toString(r[4]),
		})
	}
	return out
}

// KuzuDB returns typed Go values; these coerce any -> concrete type.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toInt(v any) int { return int(toInt64(v)) }
