// Package symbols invokes the external AST symbol-indexing engine. The
// engine is a collaborator, not part of the pipeline: we only speak its
// subprocess interface, a project path plus an action name in and JSON on
// stdout or a non-zero exit out.
package symbols

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"webtap/internal/logger"
)

// Engine wraps the indexing subprocess.
type Engine struct {
	path string
	log  logger.Logger
}

// New points at the engine executable.
func New(path string, l logger.Logger) *Engine {
	if l == nil {
		l = logger.NewNop()
	}
	return &Engine{path: path, log: l}
}

// Run invokes one action against a project and returns the engine's JSON
// output.
func (e *Engine) Run(ctx context.Context, project, action string) (json.RawMessage, error) {
	if e.path == "" {
		return nil, fmt.Errorf("symbols: engine path not configured")
	}
	cmd := exec.CommandContext(ctx, e.path, "--project", project, action)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("symbols: %s failed: %w: %s", action, err, detail)
		}
		return nil, fmt.Errorf("symbols: %s failed: %w", action, err)
	}
	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		return nil, fmt.Errorf("symbols: %s returned non-JSON output", action)
	}
	e.log.Debug("symbol engine call", "action", action, "project", project, "bytes", len(out))
	return json.RawMessage(out), nil
}
