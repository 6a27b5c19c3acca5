package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is the per-request scratch directory. Every request gets a
// fresh one and nothing is ever shared or reused across requests: the
// repair step is validated by output-file existence, so a stale file from
// an earlier invocation would be misreported as success.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh uuid-named directory under root.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root %s: %w", root, err)
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path resolves a workspace-local filename. The name must not try to
// escape the workspace.
func (w *Workspace) Path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name == ".." {
		return "", fmt.Errorf("invalid workspace filename %q", name)
	}
	return filepath.Join(w.dir, name), nil
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.dir)
}
