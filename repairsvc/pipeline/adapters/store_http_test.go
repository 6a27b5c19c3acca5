package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

func newTestHTTPStore(t *testing.T, handler http.Handler) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store, err := NewHTTPStore(srv.URL, "test-token", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestHTTPStoreDownload(t *testing.T) {
	id := urn.NewArtifact()
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/artifacts/"+id.String()+"/blob", r.URL.Path)
		w.Header().Set("Content-Disposition", `attachment; filename="example.pdb"`)
		io.WriteString(w, "ATOM\nTER\n")
	}))

	var buf bytes.Buffer
	name, err := store.Download(context.Background(), id, &buf)

	require.NoError(t, err)
	assert.Equal(t, "example.pdb", name)
	assert.Equal(t, "ATOM\nTER\n", buf.String())
}

func TestHTTPStoreDownloadMissingIsNotFound(t *testing.T) {
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such artifact", http.StatusNotFound)
	}))

	var buf bytes.Buffer
	_, err := store.Download(context.Background(), urn.NewArtifact(), &buf)

	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestHTTPStoreUpload(t *testing.T) {
	source := urn.NewArtifact()
	policy := urn.NewPolicy()
	minted := urn.NewArtifact()
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/artifacts", r.URL.Path)
		assert.Equal(t, "chemical/x-pdb", r.Header.Get("Content-Type"))
		assert.Equal(t, "repaired.pdb", r.Header.Get("X-Name"))
		assert.Equal(t, policy.String(), r.Header.Get("X-Policy"))
		assert.Equal(t, source.String(), r.Header.Get("X-Source-Artifact"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "REPAIRED", string(body))

		json.NewEncoder(w).Encode(map[string]string{"id": minted.String()})
	}))

	id, err := store.Upload(context.Background(), ports.UploadSpec{
		Name:   "repaired.pdb",
		Policy: policy,
		Source: source,
	}, strings.NewReader("REPAIRED"))

	require.NoError(t, err)
	assert.Equal(t, minted, id)
}

func TestHTTPStoreAspectRoundTrip(t *testing.T) {
	input := urn.NewArtifact()
	repaired := urn.NewArtifact()

	var recorded aspectRecord
	store := newTestHTTPStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&recorded))
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			assert.Equal(t, urn.CacheAspectSchema, r.URL.Query().Get("schema"))
			assert.Equal(t, input.String(), r.URL.Query().Get("entity"))
			if recorded.Entity == "" {
				fmt.Fprint(w, "[]")
				return
			}
			json.NewEncoder(w).Encode([]aspectRecord{recorded})
		}
	}))

	// Nothing recorded yet: a miss.
	_, err := store.LookupAspect(context.Background(), input)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.RecordAspect(context.Background(), ports.CacheAspect{
		Input:      input,
		Repaired:   repaired,
		RecordedAt: time.Now().UTC(),
	}))
	assert.Equal(t, urn.CacheAspectSchema, recorded.Schema)
	assert.Equal(t, input.String(), recorded.Entity)

	aspect, err := store.LookupAspect(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, input, aspect.Input)
	assert.Equal(t, repaired, aspect.Repaired)
}
