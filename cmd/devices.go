package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/logging"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var rigFile string
	var backend string
	var simDevices int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List connected depth cameras",
		Long: `Enumerates the devices of the selected backend and prints each one with the settings ` +
			`it would stream with, after applying the rig file.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			provider, err := OpenBackend(backend, simDevices, nil)
			if err != nil {
				return err
			}
			session := capture.NewSession(capture.Options{
				Provider: provider,
				Logger:   logging.GetLogger(logging.ModuleDevices),
			})
			if _, err := session.Rescan(); err != nil {
				return fmt.Errorf("failed to enumerate devices: %w", err)
			}
			if _, err := ApplyRigFile(rigFile, session); err != nil {
				return fmt.Errorf("failed to apply rig file %s: %w", rigFile, err)
			}

			descs := session.Devices()
			if asJSON {
				return writeDevicesJSON(c.OutOrStdout(), descs)
			}
			return writeDevicesTable(c.OutOrStdout(), descs)
		},
	}

	cmd.Flags().StringVar(&rigFile, "rig", "rig.toml", "Path to the rig file")
	cmd.Flags().StringVar(&backend, "backend", BackendSim, "Device backend")
	cmd.Flags().IntVar(&simDevices, "sim-devices", 2, "Number of simulated devices")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

func writeDevicesJSON(w io.Writer, descs []device.Descriptor) error {
	if descs == nil {
		descs = []device.Descriptor{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(descs)
}

func writeDevicesTable(w io.Writer, descs []device.Descriptor) error {
	if len(descs) == 0 {
		_, err := fmt.Fprintln(w, "no devices found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSERIAL\tNAME\tENABLED\tCOLOR\tDEPTH\tFPS\tSYNC")
	for _, d := range descs {
		cfg := d.Config
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s %s\t%s\t%d\t%s\n",
			d.Index, d.Serial, d.Name(), d.Enabled,
			cfg.ColorFormat, cfg.ColorResolution, cfg.DepthMode, cfg.FPS.PerSecond(), syncLabel(cfg))
	}
	return tw.Flush()
}

func syncLabel(cfg device.Config) string {
	if cfg.SyncRole == device.RoleSubordinate && cfg.SyncDelayUsec > 0 {
		return fmt.Sprintf("%s +%dus", cfg.SyncRole, cfg.SyncDelayUsec)
	}
	return cfg.SyncRole.String()
}

