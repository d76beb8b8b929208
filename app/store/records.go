package store

import (
	"time"

	log "github.com/go-pkgz/lgr"
)

// StateRecord is one coordinator lifecycle snapshot.
type StateRecord struct {
	ID          int64  `db:"id"`
	Timestamp   int64  `db:"timestamp"`
	State       string `db:"state"`
	QueenStatus string `db:"queen_status"`
	WorkerCount int    `db:"worker_count"`
}

// InteractionRecord is one logged cross-role message.
type InteractionRecord struct {
	ID        int64   `db:"id"`
	Timestamp int64   `db:"timestamp"`
	FromAgent string  `db:"from_agent"`
	ToAgent   string  `db:"to_agent"`
	Message   string  `db:"message"`
	TaskID    *string `db:"task_id"`
}

// TaskRecord is one task lifecycle event.
type TaskRecord struct {
	ID          int64   `db:"id"`
	Timestamp   int64   `db:"timestamp"`
	TaskID      string  `db:"task_id"`
	Description string  `db:"description"`
	AssignedTo  string  `db:"assigned_to"`
	Status      string  `db:"status"`
	Result      *string `db:"result"`
}

// MetricRecord is one performance measurement.
type MetricRecord struct {
	ID            int64   `db:"id"`
	Timestamp     int64   `db:"timestamp"`
	AgentID       string  `db:"agent_id"`
	TaskID        string  `db:"task_id"`
	ExecutionTime float64 `db:"execution_time"`
	TokensUsed    int64   `db:"tokens_used"`
	Success       bool    `db:"success"`
}

// RecordState appends a swarm_state row. Best-effort, never fails the caller.
func (s *Store) RecordState(state, queenStatus string, workers int) {
	if state == "" || queenStatus == "" || workers < 0 {
		log.Printf("[WARN] rejected malformed state record, state=%q queen=%q workers=%d", state, queenStatus, workers)
		return
	}
	s.write("swarm_state",
		`INSERT INTO swarm_state (timestamp, state, queen_status, worker_count)
		 VALUES (:timestamp, :state, :queen_status, :worker_count)`,
		StateRecord{Timestamp: now(), State: state, QueenStatus: queenStatus, WorkerCount: workers})
}

// RecordInteraction appends an agent_interactions row. Best-effort.
func (s *Store) RecordInteraction(from, to, message, taskID string) {
	if from == "" || to == "" || message == "" {
		log.Printf("[WARN] rejected malformed interaction record, from=%q to=%q", from, to)
		return
	}
	rec := InteractionRecord{Timestamp: now(), FromAgent: from, ToAgent: to, Message: message}
	if taskID != "" {
		rec.TaskID = &taskID
	}
	s.write("agent_interactions",
		`INSERT INTO agent_interactions (timestamp, from_agent, to_agent, message, task_id)
		 VALUES (:timestamp, :from_agent, :to_agent, :message, :task_id)`, rec)
}

// RecordTask appends a task_history row. Unknown status values are rejected.
// Best-effort.
func (s *Store) RecordTask(taskID, description, assignedTo, status, result string) {
	if taskID == "" || assignedTo == "" {
		log.Printf("[WARN] rejected malformed task record, task=%q assigned=%q", taskID, assignedTo)
		return
	}
	if _, ok := validTaskStatus[status]; !ok {
		log.Printf("[WARN] rejected task record with unknown status %q, task=%q", status, taskID)
		return
	}
	rec := TaskRecord{Timestamp: now(), TaskID: taskID, Description: description,
		AssignedTo: assignedTo, Status: status}
	if result != "" {
		rec.Result = &result
	}
	s.write("task_history",
		`INSERT INTO task_history (timestamp, task_id, description, assigned_to, status, result)
		 VALUES (:timestamp, :task_id, :description, :assigned_to, :status, :result)`, rec)
}

// RecordMetric appends a performance_metrics row. Best-effort.
func (s *Store) RecordMetric(agentID, taskID string, execTime time.Duration, tokens int64, success bool) {
	if agentID == "" || taskID == "" || execTime < 0 || tokens < 0 {
		log.Printf("[WARN] rejected malformed metric record, agent=%q task=%q", agentID, taskID)
		return
	}
	s.write("performance_metrics",
		`INSERT INTO performance_metrics (timestamp, agent_id, task_id, execution_time, tokens_used, success)
		 VALUES (:timestamp, :agent_id, :task_id, :execution_time, :tokens_used, :success)`,
		MetricRecord{Timestamp: now(), AgentID: agentID, TaskID: taskID,
			ExecutionTime: execTime.Seconds(), TokensUsed: tokens, Success: success})
}

// States returns all swarm_state rows in insertion order.
func (s *Store) States() ([]StateRecord, error) {
	res := []StateRecord{}
	err := s.db.Select(&res, `SELECT * FROM swarm_state ORDER BY id`)
	return res, err
}

// Interactions returns all agent_interactions rows in insertion order.
func (s *Store) Interactions() ([]InteractionRecord, error) {
	res := []InteractionRecord{}
	err := s.db.Select(&res, `SELECT * FROM agent_interactions ORDER BY id`)
	return res, err
}

// Tasks returns all task_history rows in insertion order.
func (s *Store) Tasks() ([]TaskRecord, error) {
	res := []TaskRecord{}
	err := s.db.Select(&res, `SELECT * FROM task_history ORDER BY id`)
	return res, err
}

// Metrics returns all performance_metrics rows in insertion order.
func (s *Store) Metrics() ([]MetricRecord, error) {
	res := []MetricRecord{}
	err := s.db.Select(&res, `SELECT * FROM performance_metrics ORDER BY id`)
	return res, err
}
