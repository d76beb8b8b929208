package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hiverun/hived/app/conditions"
	"github.com/hiverun/hived/app/config"
	"github.com/hiverun/hived/app/coordinator"
	"github.com/hiverun/hived/app/notify"
	"github.com/hiverun/hived/app/store"
	"github.com/hiverun/hived/app/supervisor"
)

var opts struct {
	Config          string        `short:"f" long:"config" env:"HIVED_CONFIG" default:"hived.yml" description:"launcher config file"`
	Store           string        `long:"store" env:"HIVED_STORE" description:"override store path"`
	Topology        string        `long:"topology" env:"HIVED_TOPOLOGY" description:"override swarm topology"`
	MetricsInterval time.Duration `long:"metrics-interval" env:"HIVED_METRICS_INTERVAL" default:"30s" description:"service metrics sampling interval"`
	Dbg             bool          `long:"dbg" env:"HIVED_DEBUG" description:"debug mode"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"hived.log" description:"file to write logs to"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"maximum size in megabytes before rotation"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"maximum days to retain old log files"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"maximum number of old log files to retain"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"HIVED_LOG"`

	Notify struct {
		OnFailure    bool          `long:"on-failure" env:"ON_FAILURE" description:"enable failure notifications"`
		Destinations []string      `long:"destination" env:"DESTINATIONS" env-delim:"," description:"notification destination url(s)"`
		Timeout      time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"notification delivery timeout"`
	} `group:"notify" namespace:"notify" env-namespace:"HIVED_NOTIFY"`

	Ready struct {
		Wait    bool          `long:"wait" env:"WAIT" description:"wait for declared service ports before loading agents"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"readiness probe timeout"`
	} `group:"ready" namespace:"ready" env-namespace:"HIVED_READY"`
}

var revision = "unknown"

func main() {
	fmt.Printf("hived %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	logWriter := setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Printf("[ERROR] can't load config, %v", err)
		os.Exit(1)
	}
	if opts.Store != "" {
		cfg.Store.Path = opts.Store
	}
	if opts.Topology != "" {
		cfg.Swarm.Topology = opts.Topology
	}
	if opts.Notify.OnFailure {
		cfg.Notify.OnFailure = true
	}
	if len(opts.Notify.Destinations) > 0 {
		cfg.Notify.Destinations = opts.Notify.Destinations
		cfg.Notify.Timeout = opts.Notify.Timeout
	}
	if opts.Ready.Wait {
		cfg.Ready.Wait = true
		cfg.Ready.Timeout = opts.Ready.Timeout
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	log.Printf("[INFO] run %s, swarm %q topology %s, %d services, %d agents",
		cfg.RunID, cfg.Swarm.Command, cfg.Swarm.Topology, len(cfg.EnabledServices()), len(cfg.Agents))

	ctx, cancel := context.WithCancel(context.Background())

	tail := coordinator.NewOutputTail(cfg.Notify.MaxLogLines)
	coord := coordinator.Coordinator{
		Cfg:             cfg,
		ConfigPath:      opts.Config,
		OpenStore:       func(path string) (coordinator.Store, error) { return store.New(path) },
		Supervisor:      makeSupervisor(cfg, logWriter),
		Delegate:        &coordinator.SwarmDelegate{Capture: tail},
		Notifier:        makeNotifier(cfg),
		Checker:         conditions.Checker{},
		Tail:            tail,
		MetricsInterval: opts.MetricsInterval,
	}

	signals(cancel) // handle SIGQUIT and SIGTERM
	os.Exit(coord.Run(ctx))
}

func makeSupervisor(cfg *config.Config, stdout io.Writer) *supervisor.Supervisor {
	return &supervisor.Supervisor{
		Stdout:          stdout,
		EnableLogPrefix: true,
		GracePeriod:     cfg.Shutdown.GracePeriod,
		PidDir:          filepath.Dir(cfg.Store.Path),
	}
}

func makeNotifier(cfg *config.Config) coordinator.Notifier {
	svc := notify.New(cfg.Notify.Destinations, cfg.Notify.Timeout)
	if svc == nil {
		return nil
	}
	return svc
}

func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec}
	if opts.Dbg {
		logOpts = []log.Option{log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile}
	}

	if !opts.Log.Enabled {
		log.Setup(logOpts...)
		return os.Stdout
	}

	fileLogger := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
		LocalTime:  true,
	}
	logOpts = append(logOpts, log.Out(io.MultiWriter(os.Stdout, fileLogger)))
	log.Setup(logOpts...)
	return fileLogger
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM or SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
