package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"golang.org/x/sync/errgroup"

	"github.com/smazurov/depthrig/cmd"
	"github.com/smazurov/depthrig/internal/api"
	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/config"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/events"
	"github.com/smazurov/depthrig/internal/logging"
	"github.com/smazurov/depthrig/internal/metrics"
	"github.com/smazurov/depthrig/internal/store"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	RigFile    string `help:"Persisted per-device settings" default:"rig.toml" toml:"devices.rig_file" env:"DEVICES_RIG_FILE"`
	Backend    string `help:"Device backend (sim)" default:"sim" toml:"devices.backend" env:"DEVICES_BACKEND"`
	SimDevices int    `help:"Number of simulated devices" default:"2" toml:"devices.sim_count" env:"DEVICES_SIM_COUNT"`
	Hotplug    bool   `help:"Rescan devices on USB hotplug events" default:"true" toml:"devices.hotplug" env:"DEVICES_HOTPLUG"`

	// Capture settings
	CaptureAcquireTimeoutMs int `help:"Per-device acquire timeout in milliseconds" default:"5" toml:"capture.acquire_timeout_ms" env:"CAPTURE_ACQUIRE_TIMEOUT_MS"`
	CaptureIdlePauseMs      int `help:"Pause after a tick that acquired nothing, in milliseconds" default:"1" toml:"capture.idle_pause_ms" env:"CAPTURE_IDLE_PAUSE_MS"`
	CaptureQueueCapacity    int `help:"Display queue capacity per stream" default:"3" toml:"capture.queue_capacity" env:"CAPTURE_QUEUE_CAPACITY"`
	CaptureMaxWorkers       int `help:"Worker pool cap, 0 for no cap" default:"0" toml:"capture.max_workers" env:"CAPTURE_MAX_WORKERS"`

	// Recording settings
	RecordingDir        string `help:"Recording directory, overrides the rig file" default:"" toml:"recording.dir" env:"RECORDING_DIR"`
	RecordingContinuous bool   `help:"Record every capture instead of on demand" default:"false" toml:"recording.continuous" env:"RECORDING_CONTINUOUS"`

	// Observability settings
	PrometheusEnabled bool `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"obs.prometheus_enabled" env:"OBS_PROMETHEUS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture    string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingProcessing string `help:"Frame processing logging level" default:"info" toml:"logging.processing" env:"LOGGING_PROCESSING"`
	LoggingGenlock    string `help:"Device sync logging level" default:"info" toml:"logging.genlock" env:"LOGGING_GENLOCK"`
	LoggingRecording  string `help:"Recording logging level" default:"info" toml:"logging.recording" env:"LOGGING_RECORDING"`
	LoggingDevices    string `help:"Device backend logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingWorkers    string `help:"Worker pool logging level" default:"info" toml:"logging.workers" env:"LOGGING_WORKERS"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingStore      string `help:"Rig file logging level" default:"info" toml:"logging.store" env:"LOGGING_STORE"`
}

const shutdownTimeout = 10 * time.Second

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				logging.ModuleCapture:    opts.LoggingCapture,
				logging.ModuleProcessing: opts.LoggingProcessing,
				logging.ModuleGenlock:    opts.LoggingGenlock,
				logging.ModuleRecording:  opts.LoggingRecording,
				logging.ModuleDevices:    opts.LoggingDevices,
				logging.ModuleWorkers:    opts.LoggingWorkers,
				logging.ModuleAPI:        opts.LoggingAPI,
				logging.ModuleStore:      opts.LoggingStore,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()
		api.ForwardLogs(eventBus)

		logs := device.NewLogChannel(cmd.LogCapacity)
		provider, err := cmd.OpenBackend(opts.Backend, opts.SimDevices, logs)
		if err != nil {
			logger.Error("Failed to open device backend", "backend", opts.Backend, "error", err)
			os.Exit(1)
		}

		session := capture.NewSession(capture.Options{
			Provider:         provider,
			Logs:             logs,
			Bus:              eventBus,
			AcquireTimeout:   time.Duration(opts.CaptureAcquireTimeoutMs) * time.Millisecond,
			IdlePause:        time.Duration(opts.CaptureIdlePauseMs) * time.Millisecond,
			QueueCapacity:    opts.CaptureQueueCapacity,
			MaxWorkers:       opts.CaptureMaxWorkers,
			Logger:           logging.GetLogger(logging.ModuleCapture),
			DeviceLogger:     logging.GetLogger(logging.ModuleDevices),
			ProcessingLogger: logging.GetLogger(logging.ModuleProcessing),
			GenlockLogger:    logging.GetLogger(logging.ModuleGenlock),
			WorkersLogger:    logging.GetLogger(logging.ModuleWorkers),
			RecordingLogger:  logging.GetLogger(logging.ModuleRecording),
		})
		if _, scanErr := session.Rescan(); scanErr != nil {
			logger.Warn("Initial device scan failed", "error", scanErr)
		}

		storeLogger := logging.GetLogger(logging.ModuleStore)
		overrideRecording := func() {
			dir, continuous := session.Recording()
			if opts.RecordingDir != "" {
				dir = opts.RecordingDir
				continuous = opts.RecordingContinuous
			} else if opts.RecordingContinuous {
				continuous = true
			} else {
				return
			}
			if recErr := session.SetRecording(dir, continuous); recErr != nil {
				storeLogger.Warn("Failed to set recording directory", "error", recErr)
			}
		}
		if rig, rigErr := cmd.ApplyRigFile(opts.RigFile, session); rigErr != nil {
			storeLogger.Warn("Failed to apply rig file", "path", opts.RigFile, "error", rigErr)
		} else if rig != nil {
			storeLogger.Info("Rig file applied", "path", opts.RigFile, "devices", len(rig.Devices))
		}
		overrideRecording()

		rigWatcher := config.NewConfigWatcher(opts.RigFile, store.Load, storeLogger)
		rigWatcher.OnReload(func(rig *store.Rig) {
			if rig == nil {
				return
			}
			session.ApplyWhenIdle(func() {
				if applyErr := store.Apply(rig, session); applyErr != nil {
					storeLogger.Warn("Failed to apply reloaded rig file", "error", applyErr)
					return
				}
				overrideRecording()
				storeLogger.Info("Rig file reloaded", "path", opts.RigFile)
			})
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Session:      session,
			EventBus:     eventBus,
			RigPath:      opts.RigFile,
		}
		if opts.PrometheusEnabled {
			apiOpts.PrometheusHandler = metrics.Handler()
		}
		server := api.NewServer(apiOpts)

		ctx, cancel := context.WithCancel(context.Background())
		finished := make(chan struct{})

		hooks.OnStart(func() {
			defer close(finished)

			if watchErr := rigWatcher.Start(); watchErr != nil {
				storeLogger.Warn("Failed to watch rig file", "path", opts.RigFile, "error", watchErr)
			} else {
				defer rigWatcher.Stop()
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return session.Run(gctx)
			})
			g.Go(func() error {
				logger.Info("Starting HTTP server", "port", opts.Port)
				return server.Start(opts.Port)
			})
			g.Go(func() error {
				<-gctx.Done()
				return server.Stop()
			})
			if opts.Hotplug {
				g.Go(func() error {
					cmd.RunHotplug(gctx, session, logging.GetLogger(logging.ModuleDevices))
					return nil
				})
			}

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("sd_notify failed", "error", notifyErr)
			}

			if runErr := g.Wait(); runErr != nil {
				logger.Error("depthrig stopped with error", "error", runErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			cancel()
			select {
			case <-finished:
			case <-time.After(shutdownTimeout):
				logger.Warn("Timed out waiting for shutdown")
			}
		})
	})

	cli.Root().Use = "depthrig"
	cli.Root().Short = "Multi-device depth camera capture and recording"
	cli.Root().AddCommand(cmd.CreateDevicesCmd(), cmd.CreateRecordCmd())

	cli.Run()
}
