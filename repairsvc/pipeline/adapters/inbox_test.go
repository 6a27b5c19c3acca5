package adapters

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// fakeImporter records imported paths and deletes them like the store does.
type fakeImporter struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeImporter) ImportFile(ctx context.Context, path string) (urn.Artifact, error) {
	f.mu.Lock()
	f.paths = append(f.paths, filepath.Base(path))
	f.mu.Unlock()
	os.Remove(path)
	return urn.NewArtifact(), nil
}

func (f *fakeImporter) imported() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func TestInboxWatcherImportsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.pdb"), []byte("ATOM\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	importer := &fakeImporter{}
	watcher := NewInboxWatcher(importer, dir, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.pdb"), []byte("ATOM\n"), 0o644))

	require.Eventually(t, func() bool {
		got := importer.imported()
		return len(got) == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	watcher.Stop()

	got := importer.imported()
	assert.ElementsMatch(t, []string{"early.pdb", "late.pdb"}, got)
	assert.NotContains(t, got, "notes.txt")
}
