package admin

import (
	"net/http"
	"runtime"
	"time"
)

// BuildInfo holds build-time version information.
// Injected via WithBuildInfo option to avoid import cycles with cmd package.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SystemInfoResponse is the JSON response for GET /api/admin/system.
type SystemInfoResponse struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	Uptime     string `json:"uptime"`
	UptimeSec  int64  `json:"uptime_seconds"`
}

func (h *AdminAPIHandler) uptime() time.Duration {
	return h.now().Sub(h.startTime)
}

// handleSystemInfo returns version, runtime and uptime information.
func (h *AdminAPIHandler) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	uptime := h.uptime()

	version := "dev"
	commit := "none"
	buildDate := "unknown"

	if h.buildInfo != nil {
		version = h.buildInfo.Version
		commit = h.buildInfo.Commit
		buildDate = h.buildInfo.BuildDate
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := SystemInfoResponse{
		Version:    version,
		Commit:     commit,
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Uptime:     uptime.Truncate(time.Second).String(),
		UptimeSec:  int64(uptime.Seconds()),
	}

	h.respondJSON(w, http.StatusOK, resp)
}
