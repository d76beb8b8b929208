package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hiverun/hived/app/config"
)

func Test_setupLogsWithFileDisabled(t *testing.T) {
	opts.Log.Enabled = false
	assert.Equal(t, os.Stdout, setupLogs())
}

func Test_setupLogsToFile(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	opts.Log.Enabled = true
	defer func() { opts.Log.Enabled = false }()
	opts.Log.Filename = tmpfile.Name()
	opts.Log.MaxSize = 100
	opts.Log.MaxBackups = 7
	opts.Log.MaxAge = 0
	opts.Log.EnabledCompress = false

	out := setupLogs()
	require.IsType(t, &lumberjack.Logger{}, out)

	logger := out.(*lumberjack.Logger)
	assert.Equal(t, tmpfile.Name(), logger.Filename)
	assert.Equal(t, 100, logger.MaxSize)
	assert.Equal(t, 7, logger.MaxBackups)
	assert.Equal(t, 0, logger.MaxAge)
	assert.False(t, logger.Compress)
}

func Test_makeNotifier(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, makeNotifier(cfg), "no destinations, no notifier")

	cfg.Notify.Destinations = []string{"telegram:chan1?token=blah"}
	cfg.Notify.Timeout = 5 * time.Second
	assert.NotNil(t, makeNotifier(cfg))
}

func Test_makeSupervisor(t *testing.T) {
	cfg := &config.Config{
		Store:    config.StoreConfig{Path: "/var/hived/data/hived.db"},
		Shutdown: config.ShutdownConfig{GracePeriod: 3 * time.Second},
	}
	sup := makeSupervisor(cfg, os.Stdout)
	assert.Equal(t, 3*time.Second, sup.GracePeriod)
	assert.Equal(t, filepath.Join("/var/hived/data"), sup.PidDir)
	assert.True(t, sup.EnableLogPrefix)
}
