package obmemo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const expiredTTL = "expired"

// DebugResponse represents the JSON response structure for debug endpoints
type DebugResponse struct {
	Stats   *DebugStats  `json:"stats"`
	Entries []DebugEntry `json:"entries,omitempty"`
}

// DebugStats represents memoizer statistics in the debug response
type DebugStats struct {
	Name          string       `json:"name"`
	Hits          int64        `json:"hits"`
	Misses        int64        `json:"misses"`
	Evictions     int64        `json:"evictions"`
	Invalidations int64        `json:"invalidations"`
	Failures      int64        `json:"failures"`
	KeyCount      int64        `json:"keyCount"`
	InFlight      int64        `json:"inFlight"`
	HitRate       float64      `json:"hitRate"`
	Total         int64        `json:"total"`
	Config        *DebugConfig `json:"config"`
}

// DebugConfig represents the cache parameters in the debug response
type DebugConfig struct {
	Policy string        `json:"policy"`
	Limit  int           `json:"limit,omitempty"`
	TTL    time.Duration `json:"ttl,omitempty"`
}

// DebugEntry represents one cached entry. Entries are not forced: Value and
// Error are only present once the computation has finished.
type DebugEntry struct {
	Key       string     `json:"key"`
	Args      string     `json:"args"`
	Realized  bool       `json:"realized"`
	Value     any        `json:"value,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Age       string     `json:"age"`
	TTL       string     `json:"ttl,omitempty"`
}

// DebugHandler returns an HTTP handler that provides memoizer debug information
// The handler supports the following endpoints:
//   - GET /stats - Returns only statistics (no entries)
//   - GET /entries - Returns statistics and all entries with metadata
//   - GET / - Same as /entries
func (m *Memoizer) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		cur := m.state.Load()
		stats := m.Stats()

		response := DebugResponse{
			Stats: &DebugStats{
				Name:          m.name,
				Hits:          stats.Hits(),
				Misses:        stats.Misses(),
				Evictions:     stats.Evictions(),
				Invalidations: stats.Invalidations(),
				Failures:      stats.Failures(),
				KeyCount:      stats.KeyCount(),
				InFlight:      stats.InFlight(),
				HitRate:       stats.HitRate(),
				Total:         stats.Total(),
				Config: &DebugConfig{
					Policy: string(cur.cache.Policy()),
					Limit:  cur.cache.Limit(),
					TTL:    cur.cache.TTL(),
				},
			},
		}

		if r.URL.Path == "/" || r.URL.Path == "/entries" {
			now := m.clock()
			live := cur.entries()
			response.Entries = make([]DebugEntry, 0, len(live))

			for _, e := range live {
				debugEntry := DebugEntry{
					Key:       e.Key,
					Args:      fmt.Sprintf("%v", e.Args),
					CreatedAt: e.CreatedAt,
					ExpiresAt: e.ExpiresAt,
					Age:       formatDuration(e.Age(now)),
				}

				if value, done, err := e.Value.Peek(); done {
					debugEntry.Realized = true
					if err != nil {
						debugEntry.Error = err.Error()
					} else {
						debugEntry.Value = value
					}
				}

				if e.HasExpiry() {
					if ttl := e.TTL(now); ttl > 0 {
						debugEntry.TTL = formatDuration(ttl)
					} else {
						debugEntry.TTL = expiredTTL
					}
				}

				response.Entries = append(response.Entries, debugEntry)
			}
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
		}
	})
}

// NewDebugServer creates a new HTTP server with the debug endpoints
func (m *Memoizer) NewDebugServer(addr string) *http.Server {
	mux := http.NewServeMux()
	handler := m.DebugHandler()

	mux.Handle("/stats", handler)
	mux.Handle("/entries", handler)
	mux.Handle("/", handler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return d.String()
	}
	if d < time.Millisecond {
		return d.Truncate(time.Microsecond).String()
	}
	if d < time.Second {
		return d.Truncate(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	return d.Truncate(time.Hour).String()
}
