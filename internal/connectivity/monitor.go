// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Monitor holds the online flag and notifies listeners on every offline to
// online transition.
type Monitor struct {
	online atomic.Bool
	forced bool
	log    *zap.Logger

	mu        sync.Mutex
	listeners []chan struct{}
}

// NewMonitor starts in the given state. With forceOffline the monitor stays
// offline regardless of Set or probes.
func NewMonitor(initial, forceOffline bool, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{forced: forceOffline, log: log}
	m.online.Store(initial && !forceOffline)
	return m
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records the current state; a transition to online notifies listeners.
func (m *Monitor) Set(online bool) {
	if m.forced {
		online = false
	}
	was := m.online.Swap(online)
	if was == online {
		return
	}
	if !online {
		m.log.Warn("connectivity lost")
		return
	}
	m.log.Info("connectivity restored")

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.listeners {
		select {
		case ch <- struct{}{}:
		default:
			// a restore is already pending
		}
	}
}

// Restored returns a channel receiving one value per offline to online transition.
func (m *Monitor) Restored() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()
	return ch
}

// Run probes url every interval and updates the state until ctx is done.
// Any HTTP response counts as online; transport errors count as offline.
func (m *Monitor) Run(ctx context.Context, url string, interval time.Duration, client *http.Client) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Set(probe(ctx, client, url))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(probe(ctx, client, url))
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
