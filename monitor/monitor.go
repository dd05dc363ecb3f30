// Package monitor serves the live state of a device over HTTP: Prometheus
// metrics, a JSON API and a websocket stream of the latest output.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/obvy"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Version is reported by /api/version.
var Version = "dev"

// DefaultInterval is how often the websocket pushes the latest output.
const DefaultInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// History is a source of stored readings.
type History interface {
	Range(ctx context.Context, start, end time.Time) ([]pulseox.Reading, error)
}

// Monitor holds the latest output of a device. A single goroutine publishes
// while any number of clients read.
type Monitor struct {
	Stats    *obvy.Stats
	History  History
	Interval time.Duration

	mu      sync.RWMutex
	latest  pulseox.Output
	reading pulseox.Reading
	beats   int
}

// New returns a monitor recording outputs in stats, which may be nil.
func New(stats *obvy.Stats) *Monitor {
	return &Monitor{
		Stats:    stats,
		Interval: DefaultInterval,
	}
}

// Publish records the output of one sample.
func (m *Monitor) Publish(out pulseox.Output) {
	m.mu.Lock()
	m.latest = out
	if out.PulseDetected {
		m.beats++
	}
	m.mu.Unlock()

	if m.Stats != nil {
		m.Stats.Record(out)
	}
}

// PublishReading records the reading of the last beat.
func (m *Monitor) PublishReading(r pulseox.Reading) {
	m.mu.Lock()
	m.reading = r
	m.mu.Unlock()
}

// Latest returns the last published output.
func (m *Monitor) Latest() pulseox.Output {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Router routes:
//   - /metrics: Prometheus metrics
//   - /ws: websocket stream of the latest output
//   - /api/version
//   - /api/latest: latest output
//   - /api/reading: reading of the last beat
//   - /api/readings?from=&to=: stored readings, RFC 3339 bounds
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	if m.Stats != nil {
		r.Handle("/metrics", m.Stats.Handler())
	}
	r.HandleFunc("/ws", m.WebsocketHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", m.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/latest", m.LatestHandler).Methods(http.MethodGet)
	api.HandleFunc("/reading", m.ReadingHandler).Methods(http.MethodGet)
	api.HandleFunc("/readings", m.ReadingsHandler).Methods(http.MethodGet)
	if m.Stats != nil {
		api.Use(m.Stats.Middleware)
	}

	return otelhttp.NewHandler(r, "pulseox.monitor")
}

// VersionHandler serves the build version.
func (m *Monitor) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

// LatestHandler serves the last published output.
func (m *Monitor) LatestHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Latest())
}

// ReadingHandler serves the reading of the last beat, or 404 before the
// first beat.
func (m *Monitor) ReadingHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	reading, beats := m.reading, m.beats
	m.mu.RUnlock()

	if beats == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no beat detected yet"})
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// ReadingsHandler serves the stored readings between the from and to query
// values, the last hour by default.
func (m *Monitor) ReadingsHandler(w http.ResponseWriter, r *http.Request) {
	if m.History == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no history"})
		return
	}

	end := time.Now()
	start := end.Add(-time.Hour)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from"})
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to"})
			return
		}
	}

	readings, err := m.History.Range(r.Context(), start, end)
	if err != nil {
		slog.Error("could not query readings", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if readings == nil {
		readings = []pulseox.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// WebsocketHandler pushes the latest output every Interval until the client
// goes away.
func (m *Monitor) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
			if err := conn.WriteJSON(m.Latest()); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
