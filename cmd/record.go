package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/logging"
)

// ErrNoOutput is returned when recording has nowhere to write.
var ErrNoOutput = errors.New("no recording directory: pass --output or set save_path in the rig file")

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var rigFile string
	var backend string
	var simDevices int
	var output string
	var duration time.Duration
	var continuous bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Run a headless capture session",
		Long: `Streams every enabled device without the HTTP API and records captures to disk. ` +
			`With --continuous every capture is saved; otherwise SIGUSR1 saves the next capture of each device. ` +
			`Runs until interrupted or until --duration elapses.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("record")

			logs := device.NewLogChannel(LogCapacity)
			provider, err := OpenBackend(backend, simDevices, logs)
			if err != nil {
				return err
			}
			session := capture.NewSession(capture.Options{
				Provider:         provider,
				Logs:             logs,
				Logger:           logging.GetLogger(logging.ModuleCapture),
				DeviceLogger:     logging.GetLogger(logging.ModuleDevices),
				ProcessingLogger: logging.GetLogger(logging.ModuleProcessing),
				GenlockLogger:    logging.GetLogger(logging.ModuleGenlock),
				WorkersLogger:    logging.GetLogger(logging.ModuleWorkers),
				RecordingLogger:  logging.GetLogger(logging.ModuleRecording),
			})
			if _, err := session.Rescan(); err != nil {
				return err
			}
			if _, err := ApplyRigFile(rigFile, session); err != nil {
				return err
			}
			if err := overrideRecording(session, output, continuous, c.Flags().Changed("continuous")); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if err := session.StartStreaming(); err != nil {
				return err
			}
			snap := session.Snapshot()
			logger.Info("Recording started",
				"session_id", snap.SessionID,
				"dir", snap.RecordDir,
				"continuous", snap.Continuous,
				"devices", len(snap.Devices))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return session.Run(gctx)
			})
			g.Go(func() error {
				return forwardSaveSignals(gctx, session, logger)
			})
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("Recording finished", "session_id", snap.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&rigFile, "rig", "rig.toml", "Path to the rig file")
	cmd.Flags().StringVar(&backend, "backend", BackendSim, "Device backend")
	cmd.Flags().IntVar(&simDevices, "sim-devices", 2, "Number of simulated devices")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Recording directory, overrides the rig file")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long, 0 to run until interrupted")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Record every capture instead of on SIGUSR1")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	return cmd
}

// overrideRecording applies --output and an explicit --continuous on top of
// the rig file's recording settings.
func overrideRecording(session *capture.Session, output string, continuous, continuousSet bool) error {
	dir, rigContinuous := session.Recording()
	if output != "" {
		dir = output
	}
	if dir == "" {
		return ErrNoOutput
	}
	if !continuousSet && output == "" {
		continuous = rigContinuous
	}
	return session.SetRecording(dir, continuous)
}

// forwardSaveSignals arms an on-demand save of every device for each
// received save signal until ctx is done.
func forwardSaveSignals(ctx context.Context, session *capture.Session, logger *slog.Logger) error {
	if len(saveSignals) == 0 {
		<-ctx.Done()
		return nil
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, saveSignals...)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigs:
			if err := session.TriggerSaveAll(); err != nil {
				logger.Warn("Save trigger ignored", "error", err)
				continue
			}
			logger.Info("Saving next capture of every device")
		}
	}
}
