package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"tools.zach/dev/guardiancord/internal/paths"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

const defaultPollInterval = 2 * time.Second

// Watcher reports changes to config.toml in a data directory. It watches the
// directory rather than the file so atomic replacement is seen, and falls
// back to stat polling when fsnotify is unavailable.
type Watcher struct {
	dir string
	// events is buffered to 1 so back-to-back writes coalesce.
	events       chan struct{}
	done         chan struct{}
	once         sync.Once
	wg           sync.WaitGroup
	pollInterval time.Duration

	// mu guards fsw and polling.
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	polling bool
}

// Watch starts watching dir/config.toml.
func Watch(dir string) (*Watcher, error) {
	return newWatcher(dir, false, defaultPollInterval)
}

func newWatcher(dir string, forcePoll bool, interval time.Duration) (*Watcher, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watch config dir: %w", err)
	}
	w := &Watcher{
		dir:          dir,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: interval,
	}

	if forcePoll {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		slog.Info("cannot watch config dir, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	w.wg.Add(1)
	go w.watch(fsw)
	return w, nil
}

// Events returns a channel that receives a signal when config.toml changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

// Close stops the watcher and waits for its goroutines to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
		w.mu.Unlock()
		w.wg.Wait()
	})
	return err
}

func isConfigFile(name string) bool {
	return filepath.Base(name) == paths.ConfigFile
}

func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && isConfigFile(event.Name) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw != nil {
				w.fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	select {
	case <-w.done:
		return
	default:
	}
	w.mu.Lock()
	w.polling = true
	w.mu.Unlock()
	w.wg.Add(1)
	go w.poll()
}

// poll stats config.toml and signals when its modification time or size
// changes.
func (w *Watcher) poll() {
	defer w.wg.Done()
	path := filepath.Join(w.dir, paths.ConfigFile)
	last := stamp(path)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if cur := stamp(path); cur != last {
				last = cur
				w.notify()
			}
		}
	}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func stamp(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}

// notify sends a single signal; a pending signal absorbs the call.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
