// Package scaffold embeds the starter project written by "mailmerge init":
// a mailmerge.yml, a sample template, a sample CSV data source and an
// .env.example. It also maintains the mailmerge entry in .mcp.json.
package scaffold

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ProjectFS holds the starter project rooted at "project".
//
//go:embed all:project
var ProjectFS embed.FS

const projectRoot = "project"

// ServerName is the key of the mailmerge entry in .mcp.json.
const ServerName = "mailmerge"

// mcpEntry launches the MCP server over stdio.
var mcpEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "mailmerge",
  "args": ["mcp", "--stdio"]
}`)

// Action records what Install did with one destination path.
type Action struct {
	Path    string
	Created bool
	Updated bool
}

// String renders the action the way init prints it.
func (a Action) String() string {
	switch {
	case a.Created:
		return "created " + a.Path
	case a.Updated:
		return "updated " + a.Path
	default:
		return "skipped " + a.Path + " (exists, use --force to overwrite)"
	}
}

// Options controls Install.
type Options struct {
	// Force overwrites existing files and the existing .mcp.json entry.
	Force bool

	// SkipMCP leaves .mcp.json untouched.
	SkipMCP bool
}

// Install copies the starter project into dir and merges the MCP entry.
// Paths in the returned actions are relative to dir.
func Install(dir string, opts Options) ([]Action, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("scaffold: resolve %s: %w", dir, err)
	}

	var actions []Action
	err = fs.WalkDir(ProjectFS, projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(abs, rel)
		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}

		_, statErr := os.Stat(dest)
		exists := statErr == nil
		if exists && !opts.Force {
			actions = append(actions, Action{Path: rel})
			return nil
		}

		data, err := ProjectFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", path, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		actions = append(actions, Action{Path: rel, Created: !exists, Updated: exists})
		return nil
	})
	if err != nil {
		return actions, fmt.Errorf("scaffold: copy project: %w", err)
	}

	if opts.SkipMCP {
		return actions, nil
	}
	act, err := MergeMCPConfig(filepath.Join(abs, ".mcp.json"), opts.Force)
	if err != nil {
		return actions, err
	}
	act.Path = ".mcp.json"
	return append(actions, act), nil
}

// mcpConfig is the subset of .mcp.json that init touches. Other servers
// round-trip untouched as raw JSON.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// MergeMCPConfig creates mcpPath or adds the mailmerge entry to it. An
// existing entry is kept unless force is set.
func MergeMCPConfig(mcpPath string, force bool) (Action, error) {
	act := Action{Path: mcpPath}
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return act, fmt.Errorf("scaffold: parse %s: %w", mcpPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return act, fmt.Errorf("scaffold: read %s: %w", mcpPath, err)
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}
	if _, exists := cfg.MCPServers[ServerName]; exists && !force {
		return act, nil
	}
	cfg.MCPServers[ServerName] = mcpEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return act, fmt.Errorf("scaffold: marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return act, fmt.Errorf("scaffold: write %s: %w", mcpPath, err)
	}
	if data != nil {
		act.Updated = true
	} else {
		act.Created = true
	}
	return act, nil
}
