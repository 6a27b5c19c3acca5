package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/sciansa/pdb-repair/repairsvc/urn"
)

// fileImporter turns a local file into a stored artifact.
type fileImporter interface {
	ImportFile(ctx context.Context, path string) (urn.Artifact, error)
}

// InboxWatcher watches a drop directory and imports .pdb files into the
// embedded store as artifacts. It exists for local/dev setups where there
// is no remote store to upload inputs to first.
type InboxWatcher struct {
	importer fileImporter
	dir      string
	workers  int
	logger   zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewInboxWatcher creates a watcher over dir with a bounded import pool.
func NewInboxWatcher(importer fileImporter, dir string, workers int, logger zerolog.Logger) *InboxWatcher {
	if workers < 1 {
		workers = 1
	}
	return &InboxWatcher{
		importer: importer,
		dir:      dir,
		workers:  workers,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Files already sitting in the inbox are imported
// first. Returns once the watcher is installed; imports run in the
// background until Stop or ctx cancellation.
func (iw *InboxWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(iw.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(iw.dir); err != nil {
		watcher.Close()
		return err
	}
	iw.watcher = watcher

	go iw.run(ctx)
	return nil
}

// Stop shuts the watcher down and waits for in-flight imports.
func (iw *InboxWatcher) Stop() {
	if iw.watcher != nil {
		iw.watcher.Close()
	}
	<-iw.done
}

func (iw *InboxWatcher) run(ctx context.Context) {
	defer close(iw.done)

	p := pool.New().WithMaxGoroutines(iw.workers)
	defer p.Wait()

	iw.sweep(ctx, p)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
				iw.submit(ctx, p, event.Name)
			}
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.logger.Warn().Err(err).Msg("inbox watch error")
		}
	}
}

// sweep imports files that were dropped before the watcher started.
func (iw *InboxWatcher) sweep(ctx context.Context, p *pool.Pool) {
	entries, err := os.ReadDir(iw.dir)
	if err != nil {
		iw.logger.Warn().Err(err).Msg("inbox sweep failed")
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			iw.submit(ctx, p, filepath.Join(iw.dir, entry.Name()))
		}
	}
}

func (iw *InboxWatcher) submit(ctx context.Context, p *pool.Pool, path string) {
	if !strings.HasSuffix(strings.ToLower(path), ".pdb") {
		return
	}
	p.Go(func() {
		id, err := iw.importer.ImportFile(ctx, path)
		if err != nil {
			iw.logger.Warn().Err(err).Str("path", path).Msg("inbox import failed")
			return
		}
		iw.logger.Info().Str("path", path).Str("artifact", id.String()).Msg("imported inbox file")
	})
}
