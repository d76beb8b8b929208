package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	log "github.com/go-pkgz/lgr"
)

// pidfiles track spawned services across launcher crashes: a leftover file
// on startup means the previous run didn't tear down cleanly.

func (s *Supervisor) writePidFile(id string, pid int) string {
	if s.PidDir == "" {
		return ""
	}
	if err := os.MkdirAll(s.PidDir, 0o700); err != nil {
		log.Printf("[DEBUG] can't make %s, %s", s.PidDir, err)
		return ""
	}

	fname := filepath.Join(s.PidDir, id+".pid")
	if err := os.WriteFile(fname, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		log.Printf("[WARN] can't write pidfile %s, %v", fname, err)
		return ""
	}
	return fname
}

func (s *Supervisor) removePidFile(h *Handle) {
	if h.pidFile == "" {
		return
	}
	if err := os.Remove(h.pidFile); err != nil && !os.IsNotExist(err) {
		log.Printf("[DEBUG] can't remove pidfile %s, %v", h.pidFile, err)
	}
}

// ReapStale detects pidfiles left by a crashed previous run, signals the
// processes that are still alive and removes the files.
func (s *Supervisor) ReapStale() {
	if s.PidDir == "" {
		return
	}

	entries, err := os.ReadDir(s.PidDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[WARN] can't read pid dir %s, %v", s.PidDir, err)
		}
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pid") {
			continue
		}
		fname := filepath.Join(s.PidDir, e.Name())
		data, err := os.ReadFile(fname)
		if err != nil {
			log.Printf("[WARN] can't read stale pidfile %s, %v", fname, err)
			continue
		}

		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			log.Printf("[WARN] malformed pidfile %s, %v", fname, err)
			_ = os.Remove(fname)
			continue
		}

		id := strings.TrimSuffix(e.Name(), ".pid")
		if proc, err := os.FindProcess(pid); err == nil && proc.Signal(syscall.Signal(0)) == nil {
			log.Printf("[WARN] stale service %s from previous run still alive, pid %d, terminating", id, pid)
			_ = proc.Signal(syscall.SIGTERM)
		} else {
			log.Printf("[DEBUG] removing stale pidfile for %s, pid %d gone", id, pid)
		}
		_ = os.Remove(fname)
	}
}
