package main

import (
	"fmt"
	"net/netip"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ngoduykhanh/wgserver/manager"
	"github.com/ngoduykhanh/wgserver/util"
)

func newInitCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	var (
		subnet           string
		endpoint         string
		port             uint16
		networkInterface string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the server config with a fresh key pair",
		Long: `Create the server config with a fresh key pair.
Missing values default to subnet 10.0.0.0/24, port 51820, the public
address of this host as endpoint and the first active network interface.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stderr := cmd.ErrOrStderr()

			if !cmd.Flags().Changed("subnet") {
				fmt.Fprintf(stderr, "Using default subnet: %s\n", subnet)
			}
			prefix, err := netip.ParsePrefix(subnet)
			if err != nil {
				return fmt.Errorf("invalid subnet %q: %w", subnet, err)
			}
			if !prefix.Addr().Is4() {
				return fmt.Errorf("subnet %s is not an IPv4 network", prefix)
			}

			if endpoint == "" {
				if endpoint, err = util.DetectEndpoint(); err != nil {
					return err
				}
				fmt.Fprintf(stderr, "Using default public ip address: %s\n", endpoint)
			}
			if !cmd.Flags().Changed("port") {
				fmt.Fprintf(stderr, "Using default port: %d\n", port)
			}
			if networkInterface == "" {
				iface, err := util.GetDefaultInterface()
				if err != nil {
					return fmt.Errorf("failed to get default network interface: %w", err)
				}
				networkInterface = iface.Name
				fmt.Fprintf(stderr, "Using default network interface: %s\n", networkInterface)
			}

			server := m().CreateServer(prefix, endpoint, port, networkInterface)
			return m().Init(opts.configPath, server)
		},
	}

	cmd.Flags().StringVar(&subnet, "subnet", util.DefaultSubnet, "IPv4 network of the tunnel")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Public host or address clients connect to")
	cmd.Flags().Uint16Var(&port, "port", util.DefaultServerPort, "UDP listen port")
	cmd.Flags().StringVar(&networkInterface, "interface", "", "Uplink interface used by the NAT rules")
	return cmd
}

func newAddClientCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "add-client <name>",
		Short: "Register a client and add it to the running interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()

			id, err := m().AddClient(ctx, opts.device, opts.configPath, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created client with id: %d\n", id)
			return nil
		},
	}
}

func newRemoveClientCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-client <id>",
		Short: "Remove a client and drop it from the running interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := opts.context()
			defer cancel()

			if err := m().RemoveClient(ctx, opts.device, opts.configPath, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted client with id: %d\n", id)
			return nil
		},
	}
}

func newListClientsCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "list-clients",
		Short: "List the registered clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := m().Summaries(opts.configPath, name)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tPUBLIC KEY")
			for _, c := range clients {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.IP, c.PublicKey)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only list clients with this name")
	return cmd
}

func newServerConfCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "server-conf",
		Short: "Print the wg-quick config of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := m().GetServerConfigText(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), conf)
			return nil
		},
	}
}

func newClientConfCmd(opts *options, m func() *manager.Manager) *cobra.Command {
	var qr string

	cmd := &cobra.Command{
		Use:   "client-conf <id>",
		Short: "Print the wg-quick config of a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if qr != "" {
				png, err := m().GetClientConfigQR(opts.configPath, id)
				if err != nil {
					return err
				}
				return writeFile(qr, png)
			}

			conf, err := m().GetClientConfigText(opts.configPath, id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), conf)
			return nil
		},
	}

	cmd.Flags().StringVar(&qr, "qr", "", "Write the config as a PNG QR code to this file instead")
	return cmd
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("client id must be a non-negative integer, got %q", arg)
	}
	return id, nil
}
