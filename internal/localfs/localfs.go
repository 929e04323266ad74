// Package localfs provides filesystem-backed merge adapters: templates are
// text files, data sources are CSV files and artifacts are written to a
// download directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/tabular"
)

// resolve maps an identifier to a path under root, refusing anything that
// escapes it.
func resolve(root, id string) (string, error) {
	clean := filepath.FromSlash(strings.TrimSpace(id))
	if clean == "" || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("localfs: %q is not a path inside %s", id, root)
	}
	return filepath.Join(root, clean), nil
}

// TemplateDir serves templates stored as text files under a directory.
type TemplateDir struct {
	root string
}

// NewTemplateDir returns a template source rooted at dir.
func NewTemplateDir(dir string) *TemplateDir {
	return &TemplateDir{root: dir}
}

// FetchTemplate reads the file named by templateID. The display name is the
// file name without its extension.
func (d *TemplateDir) FetchTemplate(_ context.Context, templateID string) (merge.Template, error) {
	p, err := resolve(d.root, templateID)
	if err != nil {
		return merge.Template{}, &merge.TemplateUnavailableError{TemplateID: templateID, Reason: merge.TemplateNotFound, Err: err}
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		reason := merge.TemplateUnavailable
		if errors.Is(err, fs.ErrNotExist) {
			reason = merge.TemplateNotFound
		}
		return merge.Template{}, &merge.TemplateUnavailableError{TemplateID: templateID, Reason: reason, Err: err}
	}
	text, _, err := tabular.DecodeText(raw)
	if err != nil {
		return merge.Template{}, &merge.TemplateUnavailableError{TemplateID: templateID, Reason: merge.TemplateUnavailable, Err: err}
	}
	base := filepath.Base(p)
	return merge.NewTemplate(templateID, strings.TrimSuffix(base, filepath.Ext(base)), string(text))
}

// CSVSource serves data grids from CSV files under a directory.
type CSVSource struct {
	root string
}

// NewCSVSource returns a grid source rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{root: dir}
}

// FetchGrid reads the CSV file named by sourceID and clips it to rng. The
// range's sheet name is ignored.
func (s *CSVSource) FetchGrid(_ context.Context, sourceID string, rng tabular.Range) (tabular.Grid, error) {
	p, err := resolve(s.root, sourceID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("localfs: open data source: %w", err)
	}
	defer f.Close()

	grid, err := tabular.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return rng.Clip(grid), nil
}

// DirProducer writes each rendered row to a file in a download directory.
// Files are grouped per job and named by sequence, so a retried row
// overwrites its earlier output.
type DirProducer struct {
	dir     string
	baseURL string
	ext     string
}

// NewDirProducer writes under dir. Artifact URLs are baseURL joined with the
// relative file path; an empty baseURL yields file:// URLs.
func NewDirProducer(dir, baseURL, ext string) *DirProducer {
	if ext == "" {
		ext = "txt"
	}
	return &DirProducer{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), ext: ext}
}

// Produce writes rendered to disk atomically.
func (p *DirProducer) Produce(ctx context.Context, _ merge.Template, rendered string, seq int, _ merge.DataRow) (merge.ArtifactRef, error) {
	name := merge.ArtifactFileName(seq, p.ext)
	rel := name
	if jobID := merge.JobIDFromContext(ctx); jobID != "" {
		if !filepath.IsLocal(jobID) || strings.ContainsAny(jobID, `/\`) {
			return merge.ArtifactRef{}, fmt.Errorf("localfs: invalid job id %q", jobID)
		}
		rel = path.Join(jobID, name)
	}

	target := filepath.Join(p.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return merge.ArtifactRef{}, fmt.Errorf("localfs: create output dir: %w", err)
	}
	if err := writeFileAtomic(target, []byte(rendered)); err != nil {
		return merge.ArtifactRef{}, err
	}

	return merge.ArtifactRef{Name: name, URL: p.link(target, rel)}, nil
}

func (p *DirProducer) link(target, rel string) string {
	if p.baseURL == "" {
		abs, err := filepath.Abs(target)
		if err != nil {
			abs = target
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return p.baseURL + "/" + rel
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".merge-*")
	if err != nil {
		return fmt.Errorf("localfs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("localfs: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localfs: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("localfs: publish artifact: %w", err)
	}
	return nil
}
