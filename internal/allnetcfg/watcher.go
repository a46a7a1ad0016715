package allnetcfg

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/allnet-project/allnet/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a Config from disk whenever acfg.json changes,
// mirroring cmd/vision3/config_watcher.go's debounced hot-reload.
// Long-running daemons (abc, keyd) hold a Watcher so a config edit
// takes effect without a restart.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
	log     logging.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewWatcher loads dir/acfg.json and starts watching it for changes.
func NewWatcher(dir string) (*Watcher, error) {
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{dir: dir, watcher: fw, done: make(chan struct{}), log: logging.New("allnetcfg"), cfg: cfg}
	go w.loop()
	return w, nil
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
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
	target := filepath.Join(w.dir, configFileName)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.reload)
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

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		w.log.Error("reload failed: %v", err)
		return
	}
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
	w.log.Info("configuration reloaded from %s", filepath.Join(w.dir, configFileName))
}
