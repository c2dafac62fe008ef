// Package telemetry supplies process resource snapshots. The engine feeds them
// into its weight, strength and pruning decisions, so tests substitute a
// Static provider to get deterministic scores.
package telemetry

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Memory holds byte counts.
type Memory struct {
	RSS       uint64 `json:"rss"`
	HeapUsed  uint64 `json:"heap_used"`
	HeapTotal uint64 `json:"heap_total"`
}

// CPU holds cumulative process CPU time in microseconds.
type CPU struct {
	User   int64 `json:"user"`
	System int64 `json:"system"`
}

// Snapshot is a point-in-time view of process resources.
type Snapshot struct {
	Memory        Memory  `json:"memory"`
	CPU           CPU     `json:"cpu"`
	LoadAvg1m     float64 `json:"load_avg_1m"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// MemoryPressure returns heap used over heap total, or 0 when total is unknown.
func (s Snapshot) MemoryPressure() float64 {
	if s.Memory.HeapTotal == 0 {
		return 0
	}
	return float64(s.Memory.HeapUsed) / float64(s.Memory.HeapTotal)
}

// Provider is a side-effect free source of snapshots.
type Provider interface {
	Snapshot() Snapshot
}

// Static always returns the same snapshot.
type Static struct {
	Value Snapshot
}

func (s Static) Snapshot() Snapshot { return s.Value }

// Runtime reads the Go runtime, getrusage and /proc/loadavg.
type Runtime struct {
	started  time.Time
	loadPath string
}

// NewRuntime returns a provider whose uptime counts from now.
func NewRuntime() *Runtime {
	return &Runtime{started: time.Now(), loadPath: "/proc/loadavg"}
}

func (r *Runtime) Snapshot() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := Snapshot{
		Memory: Memory{
			RSS:       ms.Sys,
			HeapUsed:  ms.HeapAlloc,
			HeapTotal: ms.HeapSys,
		},
		LoadAvg1m:     readLoadAvg(r.loadPath),
		UptimeSeconds: time.Since(r.started).Seconds(),
	}

	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err == nil {
		snap.CPU.User = int64(ru.Utime.Sec)*1e6 + int64(ru.Utime.Usec)
		snap.CPU.System = int64(ru.Stime.Sec)*1e6 + int64(ru.Stime.Usec)
		if rss := maxRSSBytes(ru.Maxrss); rss > snap.Memory.RSS {
			snap.Memory.RSS = rss
		}
	}
	return snap
}

// readLoadAvg returns the 1-minute load average, 0 on platforms without procfs.
func readLoadAvg(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

// maxRSSBytes normalizes ru_maxrss: kilobytes on Linux, bytes on darwin.
func maxRSSBytes(maxrss int64) uint64 {
	if maxrss <= 0 {
		return 0
	}
	if runtime.GOOS == "darwin" {
		return uint64(maxrss)
	}
	return uint64(maxrss) * 1024
}
