package keystore

import (
	"path/filepath"
	"time"

	"github.com/allnet-project/allnet/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces a burst of filesystem events (a contact
// directory's name/my_key/local files each land separately) into one
// Reload call, the same debounce shape as the teacher's config watcher.
const reloadDebounce = 500 * time.Millisecond

// Watcher live-reloads a Store's contacts directory as entries are
// added by another process — abc and keyd both want to see a contact
// added via a separate `allnet-contacts` tool without restarting.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
	log     logging.Logger
}

// NewWatcher starts watching store's contacts directory for changes.
// Callers must call Close when done.
func NewWatcher(store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	contactsDir := filepath.Join(store.baseDir, "contacts")
	if err := fw.Add(contactsDir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{store: store, watcher: fw, done: make(chan struct{}), log: logging.New("keystore")}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := w.store.Reload(); err != nil {
					w.log.Error("reload failed: %v", err)
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error: %v", err)
		case <-w.done:
			return
		}
	}
}
