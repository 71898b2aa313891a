package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/rvald/ytmcompanion/internal/discovery"
)

var debugBrowseTimeout time.Duration

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
}

var debugDiscoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List interfaces and browse for companion servers over mDNS",
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := net.Interfaces()
		if err != nil {
			return err
		}
		fmt.Println("Network Interfaces:")
		for _, iface := range ifaces {
			addrs, _ := iface.Addrs()
			fmt.Printf("- %s (Flags: %v)\n", iface.Name, iface.Flags)
			for _, addr := range addrs {
				fmt.Printf("  - %s\n", addr.String())
			}
		}
		fmt.Println()

		fmt.Printf("Browsing %s for %s...\n", discovery.ServiceType, debugBrowseTimeout)
		found, err := discovery.Browse(debugBrowseTimeout)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No servers found.")
			return nil
		}
		for _, inst := range found {
			fmt.Printf("- %s  %s:%d  version=%s pairing=%s\n",
				inst.Name, inst.Addr, inst.Port, inst.TXT["version"], inst.TXT["pairing"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugDiscoveryCmd)
	debugDiscoveryCmd.Flags().DurationVar(&debugBrowseTimeout, "timeout", 3*time.Second, "How long to wait for responses")
}
