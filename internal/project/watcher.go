// Package project watches a source-document directory on disk and
// invalidates the OCR skip-cache (pkg/costledger) when a source PDF
// changes underneath a running loom-ingest service, so a stale skip_ocr
// run never serves pages from before an edit.
package project

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/costledger"
)

// defaultDebounce absorbs the burst of Write events most editors and
// download tools emit for a single logical save.
const defaultDebounce = 500 * time.Millisecond

// Watcher monitors a directory of source documents and invalidates the
// OCR cache entry for any PDF that changes.
type Watcher struct {
	dir      string
	ledger   *costledger.Ledger
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]time.Time
}

// NewWatcher creates a Watcher rooted at dir, invalidating ledger entries
// keyed by each PDF's base name (without extension), matching the docName
// convention cmd/loom-ingest's ingest command derives from the PDF path.
func NewWatcher(dir string, ledger *costledger.Ledger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		ledger:   ledger,
		fsw:      fsw,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
		pending:  make(map[string]time.Time),
	}, nil
}

// Start begins watching dir. Safe to call once; a second call is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents()
	go w.processDebounced()
	return nil
}

// Stop stops the watcher and releases its OS resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.fsw.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.GetLogger().Warn().Err(err).Msg("project watcher error")
		}
	}
}

func (w *Watcher) processDebounced() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	for path, ts := range w.pending {
		if now.Sub(ts) < w.debounce {
			continue
		}
		delete(w.pending, path)

		docName := docNameForPath(path)
		if err := w.ledger.InvalidateOCR(docName); err != nil {
			logger.GetLogger().Warn().Err(err).Str("doc", docName).Msg("failed to invalidate OCR cache")
		}
	}
}

func docNameForPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
