// Package sysinfo assembles the device statistics documents published on the
// stats topics: network interfaces, a static system profile, live runtime
// counters and heap figures. All reports marshal to JSON as-is.
package sysinfo

import (
	"net"
	"os"
	"runtime"
	"time"
)

// InterfaceInfo describes one network interface.
type InterfaceInfo struct {
	Name         string   `json:"name"`
	MTU          int      `json:"mtu"`
	HardwareAddr string   `json:"hardware_addr,omitempty"`
	Flags        string   `json:"flags"`
	Addresses    []string `json:"addresses,omitempty"`
}

// NetworkReport lists the interfaces visible to the process.
type NetworkReport struct {
	Hostname    string          `json:"hostname"`
	Interfaces  []InterfaceInfo `json:"interfaces"`
	CollectedAt time.Time       `json:"collected_at"`
}

// ProfileReport describes the host and process, collected once at startup.
type ProfileReport struct {
	Hostname  string    `json:"hostname"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
	CPUs      int       `json:"cpus"`
	GoVersion string    `json:"go_version"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// RuntimeReport carries live scheduler and GC counters.
type RuntimeReport struct {
	Goroutines    int           `json:"goroutines"`
	CgoCalls      int64         `json:"cgo_calls"`
	GCCycles      uint32        `json:"gc_cycles"`
	LastGCPause   time.Duration `json:"last_gc_pause_ns"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	CollectedAt   time.Time     `json:"collected_at"`
}

// HeapReport carries the memory statistics worth publishing; a curated
// subset of runtime.MemStats.
type HeapReport struct {
	HeapAlloc    uint64    `json:"heap_alloc_bytes"`
	HeapSys      uint64    `json:"heap_sys_bytes"`
	HeapIdle     uint64    `json:"heap_idle_bytes"`
	HeapInuse    uint64    `json:"heap_inuse_bytes"`
	HeapObjects  uint64    `json:"heap_objects"`
	TotalAlloc   uint64    `json:"total_alloc_bytes"`
	Sys          uint64    `json:"sys_bytes"`
	NumGC        uint32    `json:"num_gc"`
	NextGC       uint64    `json:"next_gc_bytes"`
	CollectedAt  time.Time `json:"collected_at"`
}

// Collector produces the reports. The zero value is not usable; construct
// with New so the profile and uptime base are fixed at startup.
type Collector struct {
	startedAt time.Time
	profile   ProfileReport
}

// New returns a Collector with the process profile frozen at call time.
func New() *Collector {
	hostname, _ := os.Hostname()
	started := time.Now()
	return &Collector{
		startedAt: started,
		profile: ProfileReport{
			Hostname:  hostname,
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUs:      runtime.NumCPU(),
			GoVersion: runtime.Version(),
			PID:       os.Getpid(),
			StartedAt: started,
		},
	}
}

// Uptime reports how long the process has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// Profile returns the startup snapshot of host and process facts.
func (c *Collector) Profile() ProfileReport {
	return c.profile
}

// Network enumerates the current interfaces. Enumeration failures yield an
// empty list rather than an error; a stats report is best effort.
func (c *Collector) Network() NetworkReport {
	report := NetworkReport{
		Hostname:    c.profile.Hostname,
		CollectedAt: time.Now(),
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return report
	}
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Name:         iface.Name,
			MTU:          iface.MTU,
			HardwareAddr: iface.HardwareAddr.String(),
			Flags:        iface.Flags.String(),
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				info.Addresses = append(info.Addresses, addr.String())
			}
		}
		report.Interfaces = append(report.Interfaces, info)
	}
	return report
}

// Runtime returns current scheduler and GC counters.
func (c *Collector) Runtime() RuntimeReport {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	var lastPause time.Duration
	if mem.NumGC > 0 {
		lastPause = time.Duration(mem.PauseNs[(mem.NumGC+255)%256])
	}
	return RuntimeReport{
		Goroutines:    runtime.NumGoroutine(),
		CgoCalls:      runtime.NumCgoCall(),
		GCCycles:      mem.NumGC,
		LastGCPause:   lastPause,
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		CollectedAt:   time.Now(),
	}
}

// Heap returns the current heap figures.
func (c *Collector) Heap() HeapReport {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return HeapReport{
		HeapAlloc:   mem.HeapAlloc,
		HeapSys:     mem.HeapSys,
		HeapIdle:    mem.HeapIdle,
		HeapInuse:   mem.HeapInuse,
		HeapObjects: mem.HeapObjects,
		TotalAlloc:  mem.TotalAlloc,
		Sys:         mem.Sys,
		NumGC:       mem.NumGC,
		NextGC:      mem.NextGC,
		CollectedAt: time.Now(),
	}
}
