package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngoduykhanh/wgserver/manager"
)

func newUpCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Write the interface config and bring the interface up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			if err := m().BringUp(ctx, opts.device, opts.configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wg server started")
			return nil
		},
	}
}

func newDownCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Bring the interface down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			if err := m().BringDown(ctx, opts.device); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wg server stopped")
			return nil
		},
	}
}

func newRebootCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "reboot",
		Short: "Restart the interface with a freshly written config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			if err := m().Reboot(ctx, opts.device, opts.configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wg server restarted")
			return nil
		},
	}
}

func newStatsCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show handshake and transfer statistics per client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			stats, err := m().ClientStats(ctx, opts.device, opts.configPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tCONNECTED\tENDPOINT\tHANDSHAKE\tUPLOADED\tDOWNLOADED")
			for _, s := range stats {
				handshake := "never"
				if !s.LatestHandshake.IsZero() {
					handshake = s.LatestHandshake.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\t%d\t%d\n",
					s.ID, s.Name, s.IP, s.Connected, s.Endpoint, handshake, s.Uploaded, s.Downloaded)
			}
			return w.Flush()
		},
	}
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
