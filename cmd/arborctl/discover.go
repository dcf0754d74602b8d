package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/discovery"
)

var discoverTimeout time.Duration

func init() {
	cmd := newDiscoverCmd()
	cmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultBrowseTimeout, "How long to browse")
	rootCmd.AddCommand(cmd)
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find Arbor devices on the local network",
		Long: `The discover command browses mDNS for Arbor devices and prints one
line per device found: the device ID, the address to connect to, and
the advertised protocol version.

Example:
  arborctl discover
  arborctl discover --timeout 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover()
		},
	}
}

func runDiscover() error {
	browser := discovery.NewBrowser(discovery.BrowserConfig{})

	printVerbose("Browsing %s for %s...\n", discovery.ServiceType, discoverTimeout)
	found, err := browser.Browse(context.Background(), discoverTimeout)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(found)
	}

	if len(found) == 0 {
		printInfo("No devices found\n")
		return nil
	}
	printInfo("%-20s %-28s %s\n", "DEVICE", "ADDRESS", "PROTOCOL")
	for _, f := range found {
		printInfo("%-20s %-28s %s\n", f.DeviceID, f.Addr(), f.Protocol)
	}
	return nil
}
