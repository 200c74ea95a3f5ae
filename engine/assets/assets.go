// Package assets is the thin asset layer the renderer consumes: shader
// bytecode blobs, decoded images and bitmap font descriptors, plus a
// directory watcher that reports on-disk changes so textures can hot
// reload. It never parses anything the hardware layer cares about;
// everything it hands over is already decoded.
package assets

import (
	"os"
	"path/filepath"

	cerrors "github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/ember-engine/ember/engine/core"
)

// Manager owns the asset root and the change watcher. File events
// arrive on the watcher's goroutine and are queued; Pump drains the
// queue on the driving thread and fires asset-modified events on the
// bus, keeping bus delivery single-threaded.
type Manager struct {
	root    string
	bus     *core.EventBus
	watcher *fsnotify.Watcher
	changed chan string
	done    chan struct{}
}

const changeQueueDepth = 64

// NewManager creates a manager rooted at dir and starts watching it and
// every subdirectory.
func NewManager(dir string, bus *core.EventBus) (*Manager, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, cerrors.Wrapf(err, "asset root %q", dir)
	}
	if !info.IsDir() {
		return nil, cerrors.Newf("assets: root %q is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cerrors.Wrap(err, "creating asset watcher")
	}

	m := &Manager{
		root:    dir,
		bus:     bus,
		watcher: watcher,
		changed: make(chan string, changeQueueDepth),
		done:    make(chan struct{}),
	}

	if err := m.watchTree(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	go m.watch()

	core.LogInfo("asset manager watching %q", dir)
	return m, nil
}

// Root returns the asset root directory.
func (m *Manager) Root() string {
	return m.root
}

// Path resolves a root-relative asset path.
func (m *Manager) Path(elements ...string) string {
	return filepath.Join(append([]string{m.root}, elements...)...)
}

func (m *Manager) watchTree(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return m.watcher.Add(path)
		}
		return nil
	})
}

func (m *Manager) watch() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories must join the watch set.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := m.watchTree(event.Name); err != nil {
						core.LogWarn("watching new asset directory %q: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				select {
				case m.changed <- event.Name:
				default:
					// A full queue means a burst of writes; the ones we
					// keep are enough to trigger the reload.
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %v", err)
		case <-m.done:
			return
		}
	}
}

// Pump drains queued file changes and fires one asset-modified event
// per path on the bus. Called once per frame from the driving thread.
func (m *Manager) Pump() {
	for {
		select {
		case path := <-m.changed:
			rel, err := filepath.Rel(m.root, path)
			if err != nil {
				rel = path
			}
			core.LogDebug("asset modified: %s", rel)
			context := core.EventContext{}
			context.Data.Str = rel
			m.bus.Fire(core.EVENT_CODE_ASSET_MODIFIED, m, context)
		default:
			return
		}
	}
}

// Shutdown stops the watcher.
func (m *Manager) Shutdown() {
	close(m.done)
	m.watcher.Close()
}
