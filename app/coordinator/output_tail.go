package coordinator

import (
	"bytes"
	"strings"
	"sync"
)

// OutputTail captures swarm delegate output (stdout+stderr combined).
// it collects last N log lines in a circular buffer. thread safe for concurrent writes.
type OutputTail struct {
	maxLines int
	log      []string
	mu       sync.Mutex
}

// NewOutputTail creates io.Writer that captures output limited to last max lines
func NewOutputTail(maximum int) *OutputTail {
	return &OutputTail{maxLines: maximum}
}

// Write satisfies io.Writer interface, captures last N log lines in circular buffer
func (o *OutputTail) Write(p []byte) (n int, err error) {
	if o.maxLines == 0 {
		return len(p), nil // disabled, don't capture anything
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if len(o.log) >= o.maxLines {
			o.log = o.log[1:]
		}
		o.log = append(o.log, string(line))
	}
	return len(p), err
}

// Tail returns the captured log output as a single string
func (o *OutputTail) Tail() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.log, "\n")
}
