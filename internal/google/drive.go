package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dusk-indust/mailmerge/internal/merge"
)

// DriveProducer materializes each row as a Drive copy of the template whose
// body is replaced by the rendered text. The returned URL is a direct
// export link carrying the short-lived access token.
//
// Copies are tagged with the job ID and row sequence as Drive app
// properties (or found by their deterministic name when no job is in
// scope). A retried row finds the copy made by the earlier attempt and
// overwrites its content instead of copying again.
type DriveProducer struct {
	c          *Client
	folderID   string
	format     string
	embedToken bool
}

// DriveOption configures a DriveProducer.
type DriveOption func(*DriveProducer)

// WithFolder places copies in the given Drive folder.
func WithFolder(id string) DriveOption {
	return func(p *DriveProducer) {
		p.folderID = id
	}
}

// WithExportFormat sets the export format (pdf, docx, txt, ...).
func WithExportFormat(format string) DriveOption {
	return func(p *DriveProducer) {
		if format != "" {
			p.format = format
		}
	}
}

// WithoutEmbeddedToken omits the access token from export links, for
// deployments where the end user is already signed in to Google.
func WithoutEmbeddedToken() DriveOption {
	return func(p *DriveProducer) {
		p.embedToken = false
	}
}

// NewDriveProducer returns a producer backed by c.
func NewDriveProducer(c *Client, opts ...DriveOption) *DriveProducer {
	p := &DriveProducer{c: c, format: "pdf", embedToken: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type driveFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type batchUpdate struct {
	Requests []map[string]any `json:"requests"`
}

// Produce copies the template, writes rendered into the copy and returns
// its export link.
func (p *DriveProducer) Produce(ctx context.Context, tmpl merge.Template, rendered string, seq int, row merge.DataRow) (merge.ArtifactRef, error) {
	title := merge.ArtifactTitle(seq, row)

	jobID := merge.JobIDFromContext(ctx)

	fileID, err := p.findCopy(ctx, title, jobID, seq)
	if err != nil {
		return merge.ArtifactRef{}, err
	}
	if fileID == "" {
		if fileID, err = p.copyTemplate(ctx, tmpl.ID, title, jobID, seq); err != nil {
			return merge.ArtifactRef{}, err
		}
	}
	if err := p.replaceBody(ctx, fileID, rendered); err != nil {
		return merge.ArtifactRef{}, err
	}

	link, err := p.exportLink(fileID)
	if err != nil {
		return merge.ArtifactRef{}, err
	}
	return merge.ArtifactRef{Name: merge.ArtifactFileName(seq, p.format), URL: link}, nil
}

// Drive app property keys used to tag copies.
const (
	propJob = "mailmergeJob"
	propSeq = "mailmergeSeq"
)

func (p *DriveProducer) findCopy(ctx context.Context, title, jobID string, seq int) (string, error) {
	var q string
	if jobID != "" {
		q = fmt.Sprintf("appProperties has { key='%s' and value='%s' } and appProperties has { key='%s' and value='%d' } and trashed = false",
			propJob, escapeQuery(jobID), propSeq, seq)
	} else {
		q = fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(title))
	}
	if p.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(p.folderID))
	}
	v := url.Values{}
	v.Set("q", q)
	v.Set("fields", "files(id,name)")
	v.Set("pageSize", "1")

	var list struct {
		Files []driveFile `json:"files"`
	}
	if err := p.c.do(ctx, "drive", http.MethodGet, p.c.driveURL+"/drive/v3/files?"+v.Encode(), nil, &list); err != nil {
		return "", fmt.Errorf("find copy %q: %w", title, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].ID, nil
}

func (p *DriveProducer) copyTemplate(ctx context.Context, templateID, title, jobID string, seq int) (string, error) {
	body := map[string]any{"name": title}
	if jobID != "" {
		body["appProperties"] = map[string]string{propJob: jobID, propSeq: fmt.Sprint(seq)}
	}
	if p.folderID != "" {
		body["parents"] = []string{p.folderID}
	}
	var f driveFile
	u := p.c.driveURL + "/drive/v3/files/" + url.PathEscape(templateID) + "/copy"
	if err := p.c.do(ctx, "drive", http.MethodPost, u, body, &f); err != nil {
		return "", fmt.Errorf("copy template %q: %w", templateID, err)
	}
	if f.ID == "" {
		return "", fmt.Errorf("copy template %q: response has no file id", templateID)
	}
	return f.ID, nil
}

// replaceBody clears the copied document and inserts rendered at the start.
func (p *DriveProducer) replaceBody(ctx context.Context, docID, rendered string) error {
	doc, err := p.c.getDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("read copy %q: %w", docID, err)
	}

	var reqs []map[string]any
	// The final newline of a document body cannot be deleted.
	if end := doc.endIndex() - 1; end > 1 {
		reqs = append(reqs, map[string]any{
			"deleteContentRange": map[string]any{
				"range": map[string]int{"startIndex": 1, "endIndex": end},
			},
		})
	}
	if rendered != "" {
		reqs = append(reqs, map[string]any{
			"insertText": map[string]any{
				"location": map[string]int{"index": 1},
				"text":     rendered,
			},
		})
	}
	if len(reqs) == 0 {
		return nil
	}

	u := p.c.docsURL + "/v1/documents/" + url.PathEscape(docID) + ":batchUpdate"
	if err := p.c.do(ctx, "docs", http.MethodPost, u, batchUpdate{Requests: reqs}, nil); err != nil {
		return fmt.Errorf("write copy %q: %w", docID, err)
	}
	return nil
}

func (p *DriveProducer) exportLink(docID string) (string, error) {
	v := url.Values{}
	v.Set("format", p.format)
	if p.embedToken {
		tok, err := p.c.accessToken()
		if err != nil {
			return "", err
		}
		v.Set("access_token", tok)
	}
	return fmt.Sprintf("%s/document/d/%s/export?%s", p.c.exportURL, url.PathEscape(docID), v.Encode()), nil
}

// escapeQuery escapes a literal for the Drive query language.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
