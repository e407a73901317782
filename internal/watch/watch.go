package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/danielpatrickdp/boardgate/internal/directory"
)

// #region syncer
// Syncer absorbs one identity folder scan into the directory store.
type Syncer interface {
	SyncPhotoDir(ctx context.Context, identityKey, displayName string, paths []string) error
}
// #endregion syncer

// #region watcher-struct
// Watcher mirrors a reference photo directory into the directory store.
// Each immediate subdirectory is one identity: the folder name becomes
// the display name and, sanitized, the identity key. Filesystem events
// are debounced into full rescans.
type Watcher struct {
	dir      string
	debounce time.Duration
	syncer   Syncer
	fsw      *fsnotify.Watcher

	lastSeen map[string]string // identity keys this watcher synced → folder name
}
// #endregion watcher-struct

// #region constructor
// New prepares a watcher over dir. The directory must exist.
func New(dir string, debounce time.Duration, syncer Syncer) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("photo dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("photo dir %s is not a directory", dir)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		syncer:   syncer,
		fsw:      fsw,
		lastSeen: map[string]string{},
	}, nil
}
// #endregion constructor

// #region run
// Run scans once, then watches for changes until ctx is cancelled or the
// watcher is closed. Sync failures are logged and retried on the next
// event; they never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return fmt.Errorf("add watch dirs: %w", err)
	}
	w.rescan(ctx)
	log.Printf("[WATCH] watching %s", w.dir)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ignoreEvent(event) {
				continue
			}
			if !pending {
				timer.Reset(w.debounce)
				pending = true
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WATCH] watcher error: %v", err)
		case <-timer.C:
			pending = false
			if err := w.addWatchDirs(); err != nil {
				log.Printf("[WATCH] add watch dirs: %v", err)
			}
			w.rescan(ctx)
		}
	}
}

// Close stops the underlying filesystem watcher, which ends Run.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
// #endregion run

// #region rescan
// rescan syncs every identity folder and clears the photo sets of
// folders that disappeared since the last scan.
func (w *Watcher) rescan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[WATCH] read photo dir: %v", err)
		return
	}

	current := map[string]bool{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		key := directory.SanitizeKey(e.Name())
		if key == "" {
			continue
		}
		paths, err := ListPhotoFiles(filepath.Join(w.dir, e.Name()))
		if err != nil {
			log.Printf("[WATCH] scan %s: %v", e.Name(), err)
			continue
		}
		current[key] = true
		if err := w.syncer.SyncPhotoDir(ctx, key, e.Name(), paths); err != nil {
			log.Printf("[WATCH] sync %s: %v", key, err)
			continue
		}
		w.lastSeen[key] = e.Name()
	}

	for key, name := range w.lastSeen {
		if current[key] {
			continue
		}
		if err := w.syncer.SyncPhotoDir(ctx, key, name, nil); err != nil {
			log.Printf("[WATCH] clear %s: %v", key, err)
			continue
		}
		log.Printf("[WATCH] folder for %s removed, photo set cleared", key)
		delete(w.lastSeen, key)
	}
}
// #endregion rescan

// #region watch-dirs
func (w *Watcher) addWatchDirs() error {
	return filepath.Walk(w.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") && path != w.dir {
				return filepath.SkipDir
			}
			return w.fsw.Add(path)
		}
		return nil
	})
}

func ignoreEvent(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return true
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0
}
// #endregion watch-dirs

// #region list-photos
// ListPhotoFiles returns the photo files directly inside dir, sorted by
// name.
func ListPhotoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isPhotoFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

func isPhotoFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}
// #endregion list-photos
