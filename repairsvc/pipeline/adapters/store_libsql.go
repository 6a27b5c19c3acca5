package adapters

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/sciansa/pdb-repair/repairsvc/pipeline/ports"
	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LibSQLStore is an embedded artifact store for local and development use:
// artifact rows and aspects live in a libsql database, payloads on disk in
// a blob directory. It implements the same port as the remote store so the
// pipeline cannot tell them apart.
type LibSQLStore struct {
	db      *sql.DB
	blobDir string
	logger  zerolog.Logger
}

// OpenLibSQLStore opens (creating if needed) the embedded store and runs
// schema migrations.
func OpenLibSQLStore(dbPath, blobDir string, logger zerolog.Logger) (*LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+dbPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening embedded store: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running store migrations: %w", err)
	}

	logger.Info().Str("db", dbPath).Str("blobs", blobDir).Msg("embedded artifact store ready")
	return &LibSQLStore{db: db, blobDir: blobDir, logger: logger}, nil
}

// Close releases the database handle.
func (s *LibSQLStore) Close() error {
	return s.db.Close()
}

// LookupAspect implements ports.ArtifactStore.
func (s *LibSQLStore) LookupAspect(ctx context.Context, input urn.Artifact) (*ports.CacheAspect, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM aspects WHERE entity = ? AND schema = ?`,
		input.String(), urn.CacheAspectSchema,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no cache aspect for %s: %w", input, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying aspect: %w", err)
	}

	var c aspectContent
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return nil, fmt.Errorf("decoding aspect content: %w", err)
	}
	return &ports.CacheAspect{Input: c.Input, Repaired: c.Repaired, RecordedAt: c.RecordedAt}, nil
}

// Download implements ports.ArtifactStore.
func (s *LibSQLStore) Download(ctx context.Context, id urn.Artifact, w io.Writer) (string, error) {
	var name, blobPath string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, blob_path FROM artifacts WHERE id = ?`, id.String(),
	).Scan(&name, &blobPath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("artifact %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying artifact: %w", err)
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return "", fmt.Errorf("opening artifact payload: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return "", fmt.Errorf("transferring artifact payload: %w", err)
	}
	return name, nil
}

// Upload implements ports.ArtifactStore.
func (s *LibSQLStore) Upload(ctx context.Context, spec ports.UploadSpec, r io.Reader) (urn.Artifact, error) {
	id := urn.NewArtifact()
	blobPath := filepath.Join(s.blobDir, id.ShortID()+".pdb")

	f, err := os.Create(blobPath)
	if err != nil {
		return urn.Artifact{}, fmt.Errorf("creating artifact payload: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(blobPath)
		return urn.Artifact{}, fmt.Errorf("writing artifact payload: %w", err)
	}

	policy := ""
	if !spec.Policy.IsZero() {
		policy = spec.Policy.String()
	}
	source := ""
	if !spec.Source.IsZero() {
		source = spec.Source.String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, name, mime_type, size, policy, source, blob_path) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), spec.Name, pdbMimeType, size, policy, source, blobPath,
	)
	if err != nil {
		os.Remove(blobPath)
		return urn.Artifact{}, fmt.Errorf("recording artifact: %w", err)
	}

	s.logger.Debug().Str("artifact", id.String()).Str("name", spec.Name).Int64("size", size).Msg("stored artifact")
	return id, nil
}

// RecordAspect implements ports.ArtifactStore. Recording is first-write
// wins: an existing aspect for the same input is never overwritten.
func (s *LibSQLStore) RecordAspect(ctx context.Context, aspect ports.CacheAspect) error {
	content, err := json.Marshal(aspectContent{
		Input:      aspect.Input,
		Repaired:   aspect.Repaired,
		RecordedAt: aspect.RecordedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding aspect content: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO aspects (entity, schema, content, recorded_at) VALUES (?, ?, ?, ?)`,
		aspect.Input.String(), urn.CacheAspectSchema, string(content), aspect.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording aspect: %w", err)
	}
	return nil
}

// ImportFile stores a local file as a new artifact, used by the inbox
// watcher. The file is removed after a successful import.
func (s *LibSQLStore) ImportFile(ctx context.Context, path string) (urn.Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return urn.Artifact{}, fmt.Errorf("opening inbox file: %w", err)
	}
	id, err := s.Upload(ctx, ports.UploadSpec{Name: filepath.Base(path)}, f)
	f.Close()
	if err != nil {
		return urn.Artifact{}, err
	}
	if err := os.Remove(path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove imported inbox file")
	}
	return id, nil
}

// Ensure LibSQLStore implements the ArtifactStore interface.
var _ ports.ArtifactStore = (*LibSQLStore)(nil)
