package adapters

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

func openTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenLibSQLStore(filepath.Join(dir, "store.db"), filepath.Join(dir, "blobs"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLibSQLStoreUploadDownloadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Upload(ctx, ports.UploadSpec{Name: "example.pdb"}, strings.NewReader("ATOM\nTER\n"))
	require.NoError(t, err)
	require.False(t, id.IsZero())

	var buf bytes.Buffer
	name, err := store.Download(ctx, id, &buf)
	require.NoError(t, err)
	assert.Equal(t, "example.pdb", name)
	assert.Equal(t, "ATOM\nTER\n", buf.String())
}

func TestLibSQLStoreDownloadMissingIsNotFound(t *testing.T) {
	store := openTestStore(t)

	var buf bytes.Buffer
	_, err := store.Download(context.Background(), urn.NewArtifact(), &buf)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestLibSQLStoreAspectFirstWriteWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	input := urn.NewArtifact()

	_, err := store.LookupAspect(ctx, input)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	first := urn.NewArtifact()
	require.NoError(t, store.RecordAspect(ctx, ports.CacheAspect{
		Input: input, Repaired: first, RecordedAt: time.Now().UTC(),
	}))

	// A second record for the same input must not overwrite the first.
	require.NoError(t, store.RecordAspect(ctx, ports.CacheAspect{
		Input: input, Repaired: urn.NewArtifact(), RecordedAt: time.Now().UTC(),
	}))

	aspect, err := store.LookupAspect(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first, aspect.Repaired)
	assert.Equal(t, input, aspect.Input)
}

func TestLibSQLStoreImportFile(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "dropped.pdb")
	require.NoError(t, os.WriteFile(path, []byte("ATOM\n"), 0o644))

	id, err := store.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	var buf bytes.Buffer
	name, err := store.Download(ctx, id, &buf)
	require.NoError(t, err)
	assert.Equal(t, "dropped.pdb", name)
	assert.Equal(t, "ATOM\n", buf.String())
}
