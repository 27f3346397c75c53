// Package reconciler keeps the active watch subscriptions equal to a desired set
// of roots that is recomputed from scratch on every cycle.
package reconciler

import (
	"io"
	"sort"

	"github.com/hashicorp/go-hclog"
)

// SubscribeFunc creates a recursive subscription for root. The returned closer
// releases it.
type SubscribeFunc func(root string) (io.Closer, error)

// Liveness is implemented by subscriptions that can end on their own, for
// example when their root directory is deleted. Apply replaces a handle that is
// no longer alive.
type Liveness interface {
	Alive() bool
}

// Watches maps a watch root to its subscription. A nil value records a failed
// attempt that is retried on the next cycle.
type Watches map[string]io.Closer

// Apply brings current in line with desired and returns it. Entries present in
// both with a live subscription are left untouched.
func Apply(current Watches, desired []string, subscribe SubscribeFunc, logger hclog.Logger) Watches {
	if current == nil {
		current = make(Watches)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	wanted := make(map[string]struct{}, len(desired))
	for _, path := range desired {
		wanted[path] = struct{}{}
		if handle, ok := current[path]; ok && handle != nil {
			if alive(handle) {
				continue
			}
			logger.Debug("Watch ended, subscribing again", "path", path)
			if err := handle.Close(); err != nil {
				logger.Debug("Can't remove ended watch", "path", path, "error", err)
			}
			current[path] = nil
		}

		handle, err := subscribe(path)
		if err != nil || handle == nil {
			if err != nil {
				logger.Debug("Can't watch path", "path", path, "error", err)
			}
			current[path] = nil
			continue
		}
		current[path] = handle
	}

	for path, handle := range current {
		if _, ok := wanted[path]; ok {
			continue
		}
		if handle != nil {
			if err := handle.Close(); err != nil {
				logger.Warn("Can't remove watch", "path", path, "error", err)
			}
		}
		delete(current, path)
	}

	return current
}

func alive(handle io.Closer) bool {
	l, ok := handle.(Liveness)
	return !ok || l.Alive()
}

// Reconciler owns a Watches map and refreshes it from a desired-set provider.
// It is not safe for concurrent use; a single control loop drives it.
type Reconciler struct {
	desired   func() []string
	subscribe SubscribeFunc
	logger    hclog.Logger
	watches   Watches
	active    []string
}

func New(desired func() []string, subscribe SubscribeFunc, logger hclog.Logger) *Reconciler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reconciler{
		desired:   desired,
		subscribe: subscribe,
		logger:    logger,
		watches:   make(Watches),
	}
}

// Reconcile runs one cycle.
func (r *Reconciler) Reconcile() {
	r.watches = Apply(r.watches, r.desired(), r.subscribe, r.logger)

	active := r.Active()
	if !equal(active, r.active) {
		r.logger.Debug("Watching", "roots", active, "failed", len(r.watches)-len(active))
		r.active = active
	}
}

// paths returns the sorted watch roots, including failed ones.
func (r *Reconciler) paths() []string {
	out := make([]string, 0, len(r.watches))
	for path := range r.watches {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Active returns the sorted watch roots that have a live subscription.
func (r *Reconciler) Active() []string {
	out := make([]string, 0, len(r.watches))
	for path, handle := range r.watches {
		if handle != nil {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Close releases every subscription.
func (r *Reconciler) Close() {
	for path, handle := range r.watches {
		if handle != nil {
			if err := handle.Close(); err != nil {
				r.logger.Warn("Can't remove watch", "path", path, "error", err)
			}
		}
		delete(r.watches, path)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
