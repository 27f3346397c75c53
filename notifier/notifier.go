package notifier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/events"
)

// Notifier watches directory trees and sets a reload flag when an accepted file
// changes below one of them. Events are consumed on a goroutine of their own; the
// only thing that goroutine does with an accepted event is set the flag.
type Notifier struct {
	logger  hclog.Logger
	watcher *fsnotify.Watcher
	filter  *Filter
	flag    *events.Flag

	mutex   sync.Mutex
	dirs    map[string]int
	subs    map[*Subscription]struct{}
	pending []string
	closed  bool
	done    chan struct{}
}

// Subscription is a recursive watch of one root directory.
type Subscription struct {
	notifier *Notifier
	root     string
	dirs     map[string]struct{}
	closed   bool
	// Set once the root directory itself went away.
	ended bool
}

// Root returns the watched directory.
func (s *Subscription) Root() string {
	return s.root
}

// Alive reports whether the root is still watched. A subscription ends when its
// root is removed or renamed; it has to be closed and scheduled again.
func (s *Subscription) Alive() bool {
	s.notifier.mutex.Lock()
	defer s.notifier.mutex.Unlock()
	return !s.closed && !s.ended
}

// Close removes the subscription. Closing twice is a no-op.
func (s *Subscription) Close() error {
	return s.notifier.unschedule(s)
}

func New(logger hclog.Logger, filter *Filter, flag *events.Flag) (*Notifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if filter == nil {
		filter = NewFilter(FilterOptions{})
	}
	if flag == nil {
		flag = &events.Flag{}
	}

	return &Notifier{
		logger:  logger,
		watcher: watcher,
		filter:  filter,
		flag:    flag,
		dirs:    make(map[string]int),
		subs:    make(map[*Subscription]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins consuming events until ctx is done or the notifier is closed.
func (n *Notifier) Start(ctx context.Context) {
	go n.run(ctx)
}

func (n *Notifier) run(ctx context.Context) {
	for {
		select {
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			n.handle(event)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("Watcher error", "error", err)
		case <-ctx.Done():
			n.logger.Debug("Stopping the files watcher")
			return
		case <-n.done:
			return
		}
	}
}

func (n *Notifier) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Has(fsnotify.Create) && isDir(event.Name) {
		n.mutex.Lock()
		n.pending = append(n.pending, event.Name)
		n.mutex.Unlock()
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		n.forget(event.Name)
	}

	if !n.filter.Accept(event.Name) {
		return
	}

	if n.flag.Set(events.Event{File: event.Name, Op: event.Op, Timestamp: time.Now()}) {
		n.logger.Info("Detected change, reloading", "file", event.Name, "op", event.Op.String())
	}
}

// Schedule subscribes to root and every directory below it that is not skipped by
// the filter. It fails when root itself cannot be watched.
func (n *Notifier) Schedule(root string) (*Subscription, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", root)
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.closed {
		return nil, fmt.Errorf("watch %s: notifier closed", root)
	}

	sub := &Subscription{notifier: n, root: root, dirs: make(map[string]struct{})}
	if err := n.addLocked(sub, root); err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	n.addTreeLocked(sub, root)
	n.subs[sub] = struct{}{}

	n.logger.Debug("Watch added", "root", root, "directories", len(sub.dirs))
	return sub, nil
}

// ExpandPending adds directories created since the last call to the subscriptions
// that cover them.
func (n *Notifier) ExpandPending() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	pending := n.pending
	n.pending = nil
	for _, dir := range pending {
		sub := n.ownerLocked(dir)
		if sub == nil || n.filter.SkipDir(dir) {
			continue
		}
		n.addTreeLocked(sub, dir)
	}
}

// Close stops event consumption and releases every subscription.
func (n *Notifier) Close() error {
	n.mutex.Lock()
	if n.closed {
		n.mutex.Unlock()
		return nil
	}
	n.closed = true
	for sub := range n.subs {
		sub.closed = true
	}
	n.subs = nil
	n.dirs = nil
	n.mutex.Unlock()

	close(n.done)
	return n.watcher.Close()
}

// Directories returns the number of directories currently watched.
func (n *Notifier) Directories() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return len(n.dirs)
}

func (n *Notifier) unschedule(sub *Subscription) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if sub.closed || n.closed {
		return nil
	}
	sub.closed = true
	delete(n.subs, sub)

	var errs []error
	for dir := range sub.dirs {
		if err := n.removeLocked(dir); err != nil {
			errs = append(errs, err)
		}
	}
	n.logger.Debug("Watch removed", "root", sub.root)
	return errors.Join(errs...)
}

func (n *Notifier) addTreeLocked(sub *Subscription, root string) {
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		if n.filter.SkipDir(path) {
			return filepath.SkipDir
		}
		if err := n.addLocked(sub, path); err != nil {
			n.logger.Debug("Can't watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (n *Notifier) addLocked(sub *Subscription, dir string) error {
	if _, ok := sub.dirs[dir]; ok {
		return nil
	}
	if n.dirs[dir] == 0 {
		if err := n.watcher.Add(dir); err != nil {
			return err
		}
	}
	n.dirs[dir]++
	sub.dirs[dir] = struct{}{}
	return nil
}

func (n *Notifier) removeLocked(dir string) error {
	count := n.dirs[dir]
	if count > 1 {
		n.dirs[dir] = count - 1
		return nil
	}
	delete(n.dirs, dir)
	err := n.watcher.Remove(dir)
	if err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return fmt.Errorf("unwatch %s: %w", dir, err)
	}
	return nil
}

// forget drops bookkeeping for a directory whose watch the kernel already removed.
func (n *Notifier) forget(dir string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, ok := n.dirs[dir]; !ok {
		return
	}
	delete(n.dirs, dir)
	for sub := range n.subs {
		delete(sub.dirs, dir)
		if sub.root == dir {
			sub.ended = true
			n.logger.Debug("Watch root went away", "root", dir)
		}
	}
}

func (n *Notifier) ownerLocked(dir string) *Subscription {
	parent := filepath.Dir(dir)
	for sub := range n.subs {
		if _, ok := sub.dirs[parent]; ok {
			return sub
		}
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
