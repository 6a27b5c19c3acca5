package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspacesAreUnique(t *testing.T) {
	root := t.TempDir()

	a, err := NewWorkspace(root)
	require.NoError(t, err)
	b, err := NewWorkspace(root)
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.DirExists(t, a.Dir())
	assert.DirExists(t, b.Dir())
}

func TestWorkspacePathRejectsEscapes(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "a/b.pdb", `a\b.pdb`, "../../etc/passwd"} {
		_, err := ws.Path(name)
		assert.Error(t, err, "name %q should be rejected", name)
	}

	p, err := ws.Path("example_prep.pdb")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Dir(), "example_prep.pdb"), p)
}

func TestWorkspaceRemove(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	p, err := ws.Path("scratch.pdb")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.NoError(t, ws.Remove())
	_, statErr := os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(statErr))
}
