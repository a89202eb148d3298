// Package manage implements management of the running agent: a reload
// trigger and a read-only state introspection endpoint.
package manage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Notifier wraps notify method.
type Notifier interface {
	Notify()
}

// PairSnapshot is one candidate pair's state as reported by /status.
type PairSnapshot struct {
	ID         uint64 `json:"id"`
	Foundation string `json:"foundation"`
	State      string `json:"state"`
	Nominated  bool   `json:"nominated"`
	Priority   uint64 `json:"priority"`
}

// StreamSnapshot is one media stream's state as reported by /status.
type StreamSnapshot struct {
	Name  string         `json:"name"`
	Pairs []PairSnapshot `json:"pairs"`
}

// AgentSnapshot is the read-only view of agent state served by /status.
type AgentSnapshot struct {
	State   string           `json:"state"`
	Streams []StreamSnapshot `json:"streams"`
}

// SnapshotSource is the subset of agent.Agent's read surface /status
// needs; satisfied by the function returned from agent.Agent.Snapshot.
type SnapshotSource interface {
	Snapshot() AgentSnapshot
}

// Manager handles http management endpoints.
type Manager struct {
	notifier Notifier
	snapshot SnapshotSource
	l        *zap.Logger
}

func (m Manager) fprintln(w io.Writer, a ...interface{}) {
	if _, err := fmt.Fprintln(w, a...); err != nil {
		m.l.Warn("failed to write", zap.Error(err))
	}
}

// ServeHTTP implements http.Handler.
func (m Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/reload":
		m.l.Info("got reload request")
		w.WriteHeader(http.StatusOK)
		m.notifier.Notify()
		m.fprintln(w, "server will be reloaded soon")
	case "/status":
		if m.snapshot == nil {
			w.WriteHeader(http.StatusNotImplemented)
			m.fprintln(w, "no snapshot source configured")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.snapshot.Snapshot()); err != nil {
			m.l.Warn("failed to encode snapshot", zap.Error(err))
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		m.fprintln(w, "management endpoint not found")
	}
}

// NewManager initializes and returns Manager. src may be nil, in which
// case /status reports 501 Not Implemented.
func NewManager(l *zap.Logger, n Notifier, src SnapshotSource) Manager {
	return Manager{l: l, notifier: n, snapshot: src}
}
