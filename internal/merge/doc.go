// Package merge holds the mail-merge data model and the pure field
// substitution rules: templates, data rows, artifact references, token
// scanning and the error taxonomy shared by sources, producers and the
// orchestrator.
package merge
