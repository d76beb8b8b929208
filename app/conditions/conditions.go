// Package conditions provides preflight checking of system resources before
// the launcher starts its services.
package conditions

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/hiverun/hived/app/config"
)

// Checker verifies preflight conditions against live system metrics.
type Checker struct{}

// Check verifies if all configured thresholds are met.
// Returns true if conditions are satisfied, false with reason otherwise.
func (Checker) Check(pf config.Preflight) (bool, string) {
	// check CPU
	if pf.CPUBelow != nil {
		if ok, reason := checkCPU(*pf.CPUBelow); !ok {
			return false, reason
		}
	}

	// check memory
	if pf.MemoryBelow != nil {
		if ok, reason := checkMemory(*pf.MemoryBelow); !ok {
			return false, reason
		}
	}

	// check load average
	if pf.LoadAvgBelow != nil {
		if ok, reason := checkLoadAvg(*pf.LoadAvgBelow); !ok {
			return false, reason
		}
	}

	// check disk free space
	if pf.DiskFreeAbove != nil {
		path := pf.DiskFreePath
		if path == "" {
			path = "/"
		}
		if ok, reason := checkDiskFree(*pf.DiskFreeAbove, path); !ok {
			return false, reason
		}
	}

	return true, ""
}

// checkCPU checks if CPU usage is below threshold
func checkCPU(threshold int) (bool, string) {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return false, fmt.Sprintf("failed to get CPU: %v", err)
	}
	if len(cpuPercent) == 0 {
		return false, "no CPU data available"
	}
	current := int(cpuPercent[0])
	if current >= threshold {
		return false, fmt.Sprintf("CPU at %d%%, threshold %d%%", current, threshold)
	}
	return true, ""
}

// checkMemory checks if memory usage is below threshold
func checkMemory(threshold int) (bool, string) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return false, fmt.Sprintf("failed to get memory: %v", err)
	}
	current := int(v.UsedPercent)
	if current >= threshold {
		return false, fmt.Sprintf("memory at %d%%, threshold %d%%", current, threshold)
	}
	return true, ""
}

// checkLoadAvg checks if load average is below threshold
func checkLoadAvg(threshold float64) (bool, string) {
	loads, err := load.Avg()
	if err != nil {
		return false, fmt.Sprintf("failed to get load average: %v", err)
	}
	if loads.Load1 >= threshold {
		return false, fmt.Sprintf("load at %.2f, threshold %.2f", loads.Load1, threshold)
	}
	return true, ""
}

// checkDiskFree checks if disk free space is above threshold
func checkDiskFree(minFreePercent int, path string) (bool, string) {
	usage, err := disk.Usage(path)
	if err != nil {
		return false, fmt.Sprintf("failed to get disk usage for %s: %v", path, err)
	}
	freePercent := 100 - int(usage.UsedPercent)
	if freePercent < minFreePercent {
		return false, fmt.Sprintf("disk free at %d%%, need %d%% on %s", freePercent, minFreePercent, path)
	}
	return true, ""
}
