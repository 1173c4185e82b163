package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"market-pulse/src/logger"
)

// -----------------------------------------------------------------------------
// Subscription Registry
// -----------------------------------------------------------------------------

// SubscriptionState is the lifecycle of one subscription key's resources.
type SubscriptionState int

const (
	StateStopped SubscriptionState = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s SubscriptionState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------

// subscriptionEntry tracks the connections and resource state for one key.
// All transitions happen under the entry lock, so the first join is the only
// one that starts resources and the last leave the only one that stops them.
type subscriptionEntry struct {
	mu      sync.Mutex
	key     string
	state   SubscriptionState
	handles map[*Client]struct{}
	cancel  context.CancelFunc
}

// -----------------------------------------------------------------------------

// Registry maps subscription keys to their connections and drives per-key
// resource lifecycles through the OnFirst/OnLast hooks. The context handed to
// OnFirst is cancelled when the key's last connection leaves.
type Registry struct {
	OnFirst func(ctx context.Context, key string) error
	OnLast  func(key string)
	Logger  *logger.Logger

	baseCtx context.Context
	mu      sync.Mutex
	entries map[string]*subscriptionEntry
}

// -----------------------------------------------------------------------------

func NewRegistry(ctx context.Context, log *logger.Logger) *Registry {
	return &Registry{
		Logger:  log,
		baseCtx: ctx,
		entries: make(map[string]*subscriptionEntry),
	}
}

// -----------------------------------------------------------------------------

func (r *Registry) entry(key string) *subscriptionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &subscriptionEntry{
			key:     key,
			state:   StateStopped,
			handles: make(map[*Client]struct{}),
		}
		r.entries[key] = e
	}
	return e
}

// -----------------------------------------------------------------------------

// Join registers the connection under the key. The 0 -> 1 transition starts
// the key's resources; on start failure the connection is not registered and
// the error propagates to the gateway.
func (r *Registry) Join(key string, c *Client) error {
	e := r.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.handles) == 0 {
		e.state = StateStarting
		ctx, cancel := context.WithCancel(r.baseCtx)

		if r.OnFirst != nil {
			if err := r.OnFirst(ctx, key); err != nil {
				cancel()
				e.state = StateStopped
				return fmt.Errorf("failed to start resources for %s: %w", key, err)
			}
		}

		e.cancel = cancel
		e.state = StateRunning
		r.Logger.Info("Subscription %s: %s (first join)", key, e.state)
	}

	e.handles[c] = struct{}{}
	return nil
}

// -----------------------------------------------------------------------------

// Leave removes the connection from the key. The 1 -> 0 transition cancels
// the per-key context and destroys per-key state. Unknown connections are
// ignored, so concurrent prune and disconnect paths stay safe.
func (r *Registry) Leave(key string, c *Client) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if _, registered := e.handles[c]; !registered {
		e.mu.Unlock()
		return
	}
	delete(e.handles, c)

	empty := len(e.handles) == 0 && e.state == StateRunning
	if empty {
		e.state = StateStopping
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		if r.OnLast != nil {
			r.OnLast(key)
		}
		e.state = StateStopped
		r.Logger.Info("Subscription %s: %s (last leave)", key, e.state)
	}
	e.mu.Unlock()

	if empty {
		r.mu.Lock()
		if cur, ok := r.entries[key]; ok && cur == e {
			cur.mu.Lock()
			if len(cur.handles) == 0 && cur.state == StateStopped {
				delete(r.entries, key)
			}
			cur.mu.Unlock()
		}
		r.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// Snapshot returns the connections currently registered under the key.
func (r *Registry) Snapshot(key string) []*Client {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	clients := make([]*Client, 0, len(e.handles))
	for c := range e.handles {
		clients = append(clients, c)
	}
	return clients
}

// -----------------------------------------------------------------------------

// Count returns how many connections hold the key.
func (r *Registry) Count(key string) int {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// -----------------------------------------------------------------------------

// Counts reports total connections plus running symbol and user keys.
func (r *Registry) Counts() (connections, symbols, users int) {
	r.mu.Lock()
	entries := make([]*subscriptionEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		n := len(e.handles)
		key := e.key
		e.mu.Unlock()

		if n == 0 {
			continue
		}
		connections += n
		switch {
		case strings.HasPrefix(key, "sym:"):
			symbols++
		case strings.HasPrefix(key, "user:"):
			users++
		}
	}
	return connections, symbols, users
}

// -----------------------------------------------------------------------------

// ActiveSymbols returns the symbols that currently have subscribers.
func (r *Registry) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0)
	for key := range r.entries {
		if strings.HasPrefix(key, "sym:") {
			symbols = append(symbols, strings.TrimPrefix(key, "sym:"))
		}
	}
	return symbols
}
