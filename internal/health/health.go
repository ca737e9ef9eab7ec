// Package health exposes the engine's liveness over HTTP.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CycleStatus summarizes the last completed evaluation cycle.
type CycleStatus struct {
	CompletedAt time.Time     `json:"completed_at"`
	Triggered   int           `json:"triggered"`
	Duration    time.Duration `json:"duration"`
}

// Health reports 503 until the first cycle completes, then the last cycle's
// status as JSON.
type Health struct {
	lock    sync.RWMutex
	status  CycleStatus
	updated bool
}

func (h *Health) Set(status CycleStatus) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.status = status
	h.updated = true
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if !h.updated {
		http.Error(w, "no cycle completed yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.status); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
