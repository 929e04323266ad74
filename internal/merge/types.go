package merge

import (
	"fmt"
	"strings"
)

// Template is a fetched document template. It is immutable for the lifetime
// of a job; a retried job fetches it again.
type Template struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	RawContent  string `json:"rawContent"`
}

// NewTemplate validates and builds a Template. The ID must be non-empty;
// an empty display name falls back to the ID.
func NewTemplate(id, displayName, rawContent string) (Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Template{}, fmt.Errorf("merge: template id is required")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = id
	}
	return Template{ID: id, DisplayName: displayName, RawContent: rawContent}, nil
}

// DataRow is an ordered field-name to cell-value mapping. Keys keep the
// position of their first occurrence; a repeated key overwrites the earlier
// value (last wins).
type DataRow struct {
	keys   []string
	values map[string]string
}

// NewDataRow returns an empty row with room for n fields.
func NewDataRow(n int) DataRow {
	return DataRow{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// RowOf builds a row from alternating key/value pairs. It panics on an odd
// argument count and is intended for tests and literals.
func RowOf(kv ...string) DataRow {
	if len(kv)%2 != 0 {
		panic("merge: RowOf requires key/value pairs")
	}
	r := NewDataRow(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Set assigns value to key.
func (r *DataRow) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored for key.
func (r DataRow) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in header order.
func (r DataRow) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len reports the number of distinct fields.
func (r DataRow) Len() int { return len(r.keys) }

// ArtifactRef identifies one produced output document.
type ArtifactRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Validate reports whether the reference is usable as a manifest entry.
func (a ArtifactRef) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("merge: artifact name is required")
	}
	if a.URL == "" {
		return fmt.Errorf("merge: artifact %q has no url", a.Name)
	}
	return nil
}

// ArtifactTitle is the display title for the artifact produced from the row
// at sequence n: "Merged Document {n} - {first field value}".
func ArtifactTitle(n int, row DataRow) string {
	label := "Document"
	if keys := row.keys; len(keys) > 0 {
		if v := row.values[keys[0]]; v != "" {
			label = v
		}
	}
	return fmt.Sprintf("Merged Document %d - %s", n, label)
}

// ArtifactFileName is the deterministic file name for sequence n.
func ArtifactFileName(n int, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return fmt.Sprintf("merged_document_%d", n)
	}
	return fmt.Sprintf("merged_document_%d.%s", n, ext)
}
