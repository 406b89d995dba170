package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/bookscan/internal/camera"
)

// listVideoDevices is replaced in tests, where /sys/devices is the host's.
var listVideoDevices = camera.ListVideoDevices

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List configured camera sources and local video devices",
	Long: `List the camera sources from the configuration and the video4linux
devices present on this machine. With --watch, keep running and report
devices as they are plugged in or removed.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format, outputFormatText, outputFormatTable, outputFormatJSON); err != nil {
			return err
		}
		watch, _ := cmd.Flags().GetBool("watch")

		local, err := listVideoDevices(cmd.Context())
		if err != nil {
			return err
		}
		sources := cfg.ToRegistry().Sources()

		out := cmd.OutOrStdout()
		if format == outputFormatJSON {
			if err := writeJSON(out, map[string]interface{}{"sources": sources, "devices": local}); err != nil {
				return err
			}
		} else {
			rows := make([][]string, 0, len(sources)+len(local))
			for _, sc := range sources {
				location := sc.URL
				if location == "" {
					location = sc.Dir
				}
				name := sc.Name
				if name == cfg.Camera.DefaultSource {
					name += " *"
				}
				rows = append(rows, []string{"source", name, location, string(sc.Facing)})
			}
			for _, d := range local {
				rows = append(rows, []string{"device", d.Name, d.Path, d.Label})
			}
			if len(rows) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No camera sources configured and no video devices found")
			} else if err := writeRows(out, []string{"KIND", "NAME", "LOCATION", "DETAIL"}, rows, nil, format == outputFormatTable); err != nil {
				return err
			}
		}

		if !watch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, err := camera.WatchVideoDevices(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Watching for video devices, press Ctrl-C to stop")
		for ev := range events {
			if format == outputFormatJSON {
				if err := writeJSON(out, ev); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", ev.Action, ev.Device.Path, ev.Device.Label); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, table, json)")
	devicesCmd.Flags().Bool("watch", false, "report devices as they are added or removed")
}
