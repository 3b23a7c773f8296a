package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/cache"
	"github.com/nerrad567/nvdisplay-core/internal/hotplug"
)

// SystemMetrics is the /metrics document.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Backend       string           `json:"backend"`
	Hotplug       hotplug.Status   `json:"hotplug"`
	Cache         cache.Stats      `json:"cache"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics counts event-stream clients and the events dropped for
// clients whose send buffer was full.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics is zero when no broker is configured.
type MQTTMetrics struct {
	Enabled    bool   `json:"enabled"`
	Connected  bool   `json:"connected"`
	Reconnects uint64 `json:"reconnects"`
}

// DatabaseMetrics is the audit store's connection pool.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1 << 20

func readRuntimeMetrics() RuntimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(m.TotalAlloc) / bytesPerMB,
		NumGC:         m.NumGC,
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	info := s.service.Info()
	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime) / time.Second),
		Backend:       info.Backend,
		Hotplug:       info.Status,
		Cache:         info.Cache,
		Runtime:       readRuntimeMetrics(),
		WebSocket:     WSMetrics{ConnectedClients: s.hub.ClientCount(), DroppedEvents: s.hub.Dropped()},
	}
	if s.mqtt != nil {
		m.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected(), Reconnects: s.mqtt.Reconnects()}
	}
	if s.db != nil {
		st := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}
	writeJSON(w, http.StatusOK, m)
}
