package vocab

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay is how long the watcher waits for writes to a corpus
// file to settle before reloading it.
const DefaultReloadDelay = 250 * time.Millisecond

// Reload reports the outcome of one reload.
type Reload struct {
	Path   string
	Pairs  []string
	Err    error
	Loaded time.Time
}

// Watcher reloads a corpus file into a Library whenever it changes.
// Editors often replace files instead of writing them, so the parent
// directory is watched and events are filtered by name.
type Watcher struct {
	path    string
	library *Library
	delay   time.Duration
	logger  *log.Logger

	watcher *fsnotify.Watcher
	reloads chan Reload
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for path. The watcher must be started with
// Start before it reloads anything.
func NewWatcher(path string, library *Library, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[vocab] ", log.LstdFlags)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:    abs,
		library: library,
		delay:   DefaultReloadDelay,
		logger:  logger,
		watcher: fw,
		reloads: make(chan Reload, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.reloads)
	return nil
}

// Reloads returns the channel reporting every reload attempt. Reports are
// dropped when nobody reads them.
func (w *Watcher) Reloads() <-chan Reload {
	return w.reloads
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	var settle *time.Timer
	var settleC <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(w.delay)
			} else {
				settle.Reset(w.delay)
			}
			settleC = settle.C

		case <-settleC:
			settleC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("WARNING: watch error on %s: %v", w.path, err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != w.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// reload keeps the previous corpus when the new file is invalid.
func (w *Watcher) reload() {
	r := Reload{Path: w.path, Loaded: time.Now()}
	c, err := Load(w.path)
	if err != nil {
		r.Err = err
		w.logger.Printf("WARNING: keeping previous corpus: %v", err)
	} else {
		w.library.Replace(c)
		r.Pairs = c.Pairs()
		w.logger.Printf("reloaded corpus %s (%d pairs)", w.path, len(r.Pairs))
	}

	select {
	case w.reloads <- r:
	default:
	}
}
