package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script for delegate tests.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarm.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestSwarmDelegate_Run(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `echo "$@" > `+out)

	d := SwarmDelegate{}
	code, err := d.Run(context.Background(), DelegateRequest{
		Command:    script,
		ConfigPath: "hived.yml",
		RosterPath: "/tmp/roster.yml",
		Topology:   "mesh",
		StorePath:  "/tmp/hived.db",
		ExtraArgs:  []string{"--verbose"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "--config hived.yml --roster /tmp/roster.yml --topology mesh --store /tmp/hived.db --verbose\n",
		string(data))
}

func TestSwarmDelegate_RunCapturesOutput(t *testing.T) {
	script := writeScript(t, `echo "hello from swarm"
echo "and more" >&2`)

	tail := NewOutputTail(10)
	d := SwarmDelegate{Capture: tail}
	code, err := d.Run(context.Background(), DelegateRequest{Command: script, Topology: "mesh"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, tail.Tail(), "hello from swarm")
	assert.Contains(t, tail.Tail(), "and more")
}

func TestSwarmDelegate_RunExitCode(t *testing.T) {
	script := writeScript(t, "exit 7")

	d := SwarmDelegate{}
	code, err := d.Run(context.Background(), DelegateRequest{Command: script, Topology: "mesh"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelegate)
	assert.Equal(t, 7, code)
	assert.False(t, killedByShutdown(err))
}

func TestSwarmDelegate_RunBadCommand(t *testing.T) {
	d := SwarmDelegate{}
	code, err := d.Run(context.Background(), DelegateRequest{Command: "/no/such/swarm", Topology: "mesh"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelegate)
	assert.Equal(t, 1, code)
}

func TestSwarmDelegate_RunCanceled(t *testing.T) {
	script := writeScript(t, "sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	d := SwarmDelegate{}
	st := time.Now()
	_, err := d.Run(ctx, DelegateRequest{Command: script, Topology: "mesh", Grace: time.Second})
	require.Error(t, err)
	assert.True(t, killedByShutdown(err), "termination by signal, not an own exit code")
	assert.Less(t, time.Since(st), 5*time.Second, "should not wait out the sleep")
}

func TestSwarmDelegate_RunForceKillAfterGrace(t *testing.T) {
	script := writeScript(t, `trap "" TERM
sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	d := SwarmDelegate{}
	st := time.Now()
	_, err := d.Run(ctx, DelegateRequest{Command: script, Topology: "mesh", Grace: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(st), 5*time.Second, "SIGKILL after the grace period")
}
