package health

import (
	"context"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Overridable in tests.
var (
	getLoadAvg  = load.AvgWithContext
	getMemStats = mem.VirtualMemoryWithContext
)

// HostStats is a snapshot of the machine the server runs on. Fields the
// platform cannot report are omitted.
type HostStats struct {
	Load1          *float64 `json:"load1,omitempty"`
	Load5          *float64 `json:"load5,omitempty"`
	Load15         *float64 `json:"load15,omitempty"`
	MemTotalMB     uint64   `json:"mem_total_mb,omitempty"`
	MemUsedMB      uint64   `json:"mem_used_mb,omitempty"`
	MemUsedPercent float64  `json:"mem_used_percent,omitempty"`
}

func hostStats(ctx context.Context) HostStats {
	var s HostStats
	if avg, err := getLoadAvg(ctx); err == nil {
		s.Load1, s.Load5, s.Load15 = &avg.Load1, &avg.Load5, &avg.Load15
	}
	if vm, err := getMemStats(ctx); err == nil {
		s.MemTotalMB = vm.Total / 1024 / 1024
		s.MemUsedMB = vm.Used / 1024 / 1024
		s.MemUsedPercent = vm.UsedPercent
	}
	return s
}
