package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// handleSystemStatus reports process and host health alongside the
// rebalancer's execution mode. Metric collection failures degrade to
// partial output instead of erroring the endpoint.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"status":                 "running",
		"uptime_seconds":         int64(time.Since(s.startedAt).Seconds()),
		"default_execution_mode": string(s.rebalancer.DefaultMode()),
		"account_modes":          s.rebalancer.Modes(),
		"goroutines":             runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["host_memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"available_mb": vm.Available / 1024 / 1024,
			"used_pct":     vm.UsedPercent,
		}
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		response["cpu_pct"] = percents[0]
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpuPct, err := proc.CPUPercent(); err == nil {
			response["process_cpu_pct"] = cpuPct
		}
		if memPct, err := proc.MemoryPercent(); err == nil {
			response["process_memory_pct"] = memPct
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}
