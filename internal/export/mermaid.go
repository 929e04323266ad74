package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/mailmerge/internal/lineage"
)

// LineageMermaid produces a Mermaid graph LR diagram of the lineage store.
// Each template is a subgraph holding its jobs; MERGED_BY and PRODUCED
// edges become arrows. An empty templateID renders every template.
func LineageMermaid(ctx context.Context, store lineage.Store, templateID string) (string, error) {
	g, err := store.Snapshot(ctx, templateID)
	if err != nil {
		return "", fmt.Errorf("lineage snapshot: %w", err)
	}
	return RenderMermaid(g), nil
}

// RenderMermaid renders an already loaded graph.
func RenderMermaid(g *lineage.Graph) string {
	// Mermaid IDs must be alphanumeric.
	nodeIDs := make(map[string]string)
	next := 0
	getID := func(prefix, key string) string {
		k := prefix + ":" + key
		if id, ok := nodeIDs[k]; ok {
			return id
		}
		id := fmt.Sprintf("%s%d", prefix, next)
		next++
		nodeIDs[k] = id
		return id
	}

	jobsByTemplate := make(map[string][]lineage.JobNode)
	for _, j := range g.Jobs {
		jobsByTemplate[j.TemplateID] = append(jobsByTemplate[j.TemplateID], j)
	}

	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, t := range g.Templates {
		sb.WriteString(fmt.Sprintf("  subgraph %s[\"%s\"]\n", getID("S", t.ID), label(t.Name)))
		sb.WriteString(fmt.Sprintf("    %s[[\"%s\"]]\n", getID("T", t.ID), label(t.Name)))
		for _, j := range jobsByTemplate[t.ID] {
			sb.WriteString(fmt.Sprintf("    %s(\"%s<br/>%s %d/%d\")\n",
				getID("J", j.ID), label(shortID(j.ID)), j.Status,
				j.TotalRecords-j.FailedRecords, j.TotalRecords))
		}
		sb.WriteString("  end\n")
	}
	for _, a := range g.Artifacts {
		sb.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", getID("A", a.ID), label(a.Name)))
	}

	for _, e := range g.Edges {
		switch e.Kind {
		case lineage.EdgeMergedBy:
			sb.WriteString(fmt.Sprintf("  %s --> %s\n", getID("T", e.SourceID), getID("J", e.TargetID)))
		case lineage.EdgeProduced:
			sb.WriteString(fmt.Sprintf("  %s --> %s\n", getID("J", e.SourceID), getID("A", e.TargetID)))
		}
	}
	return sb.String()
}

// shortID keeps the first UUID group for readability.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 && len(id) == 36 {
		return id[:i]
	}
	return id
}

// label escapes quotes and truncates to 40 runes.
func label(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	if r := []rune(s); len(r) > 40 {
		s = string(r[:40])
	}
	return s
}
