package google

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dusk-indust/mailmerge/internal/merge"
)

// DocsSource fetches templates from Google Docs.
type DocsSource struct {
	c *Client
}

// NewDocsSource returns a template source backed by c.
func NewDocsSource(c *Client) *DocsSource {
	return &DocsSource{c: c}
}

func (c *Client) getDocument(ctx context.Context, id string) (*document, error) {
	var doc document
	u := c.docsURL + "/v1/documents/" + url.PathEscape(id)
	if err := c.do(ctx, "docs", http.MethodGet, u, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchTemplate loads the document and flattens it to text.
func (s *DocsSource) FetchTemplate(ctx context.Context, templateID string) (merge.Template, error) {
	doc, err := s.c.getDocument(ctx, templateID)
	if err != nil {
		if merge.IsAuthExpired(err) {
			return merge.Template{}, err
		}
		reason := merge.TemplateUnavailable
		code := statusCode(err)
		if code == http.StatusNotFound {
			reason = merge.TemplateNotFound
		}
		tuErr := &merge.TemplateUnavailableError{TemplateID: templateID, Reason: reason, StatusCode: code, Err: err}
		if merge.IsTransient(err) {
			return merge.Template{}, merge.Transient(tuErr)
		}
		return merge.Template{}, tuErr
	}
	return merge.NewTemplate(templateID, doc.Title, doc.Text())
}
