package coordinator

import (
	"sync/atomic"

	log "github.com/go-pkgz/lgr"

	"github.com/hiverun/hived/app/supervisor"
)

// Controller performs the ordered teardown: stop services in reverse start
// order, record the final state, close the store. Trigger is one-shot; any
// caller past the first gets a no-op, so signal and normal-exit paths can
// race safely.
type Controller struct {
	Supervisor Supervisor
	Handles    []*supervisor.Handle
	Store      Store
	Workers    int

	fired int32
}

// Trigger runs the teardown once. queenStatus is recorded with the final
// STOPPED row.
func (s *Controller) Trigger(queenStatus string) {
	if !atomic.CompareAndSwapInt32(&s.fired, 0, 1) {
		log.Printf("[DEBUG] shutdown already triggered, ignored")
		return
	}

	log.Printf("[INFO] shutting down")
	s.Supervisor.StopAll(s.Handles)

	// final state row goes in before the store handle is released
	s.Store.RecordState(string(StateStopped), queenStatus, s.Workers)
	if err := s.Store.Close(); err != nil {
		log.Printf("[WARN] failed to close store, %v", err)
	}
	log.Printf("[INFO] shutdown completed")
}
