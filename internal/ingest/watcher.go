package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/slipstreamco/slipcast/internal/bus"
)

// Watcher tails every JSONL feed in a spool directory. A new file starts a
// match, growth is consumed incrementally, and removal or rename of a
// tracked file ends its match.
type Watcher struct {
	dir   string
	bus   *bus.Bus
	fsw   *fsnotify.Watcher
	tails map[string]*tail
}

func NewWatcher(dir string, b *bus.Bus) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, bus: b, fsw: fsw, tails: make(map[string]*tail)}, nil
}

// Run picks up feeds already present in the directory, then follows
// filesystem events until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.closeAll()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && isFeedFile(entry.Name()) {
			w.open(filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[ingest] watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isFeedFile(ev.Name) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create):
		w.open(ev.Name)
	case ev.Op.Has(fsnotify.Write):
		if t, ok := w.tails[ev.Name]; ok {
			t.consume()
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if t, ok := w.tails[ev.Name]; ok {
			log.Printf("[ingest] feed %s gone, ending match %s", ev.Name, t.handle)
			t.close()
			delete(w.tails, ev.Name)
		}
	}
}

func (w *Watcher) open(path string) {
	if _, ok := w.tails[path]; ok {
		return
	}
	t, err := newTail(path, HandleForPath(path), w.bus)
	if err != nil {
		log.Printf("[ingest] %v", err)
		return
	}
	log.Printf("[ingest] following feed %s as match %s", path, t.handle)
	w.tails[path] = t
	t.consume()
}

func (w *Watcher) closeAll() {
	for path, t := range w.tails {
		t.close()
		delete(w.tails, path)
	}
	_ = w.fsw.Close()
}

func isFeedFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".jsonl")
}

// HandleForPath derives the match handle from the feed filename.
func HandleForPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
