package supervisor

import (
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/process"
)

// Usage is one resource sample for a supervised service process.
type Usage struct {
	ServiceID  string
	PID        int
	Uptime     time.Duration
	CPUPercent float64
	MemoryRSS  uint64 // bytes
	Alive      bool
}

// Sample collects per-process resource usage for the given handles. Dead
// services are reported with Alive=false and zero counters. Sampling errors
// are logged and the service is skipped.
func (s *Supervisor) Sample(handles []*Handle) []Usage {
	res := []Usage{}
	for _, h := range handles {
		u := Usage{ServiceID: h.ID, PID: h.PID(), Uptime: time.Since(h.StartedAt)}
		if !h.Alive() {
			res = append(res, u)
			continue
		}

		p, err := process.NewProcess(int32(h.PID()))
		if err != nil {
			log.Printf("[DEBUG] can't sample service %s, pid %d: %v", h.ID, h.PID(), err)
			continue
		}

		u.Alive = true
		if cpu, err := p.CPUPercent(); err == nil {
			u.CPUPercent = cpu
		}
		if mi, err := p.MemoryInfo(); err == nil {
			u.MemoryRSS = mi.RSS
		}
		res = append(res, u)
	}
	return res
}
