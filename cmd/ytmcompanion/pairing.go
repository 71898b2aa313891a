package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pairingCmd = &cobra.Command{
	Use:   "pairing",
	Short: "Toggle whether new companion apps may pair",
	Long: `Toggle companion authorization. A running server picks the change up
from the settings file; pairing switches itself off after every approval.`,
}

func setPairing(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openSettings(cfg)
		if err != nil {
			return err
		}
		if err := st.SetCompanionAuthorizationEnabled(enabled); err != nil {
			return err
		}
		fmt.Printf("Pairing %s.\n", pairingState(enabled))
		return nil
	}
}

var pairingEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Accept the next pairing request",
	RunE:  setPairing(true),
}

var pairingDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Reject pairing requests",
	RunE:  setPairing(false),
}

var pairingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether pairing is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openSettings(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Pairing is %s.\n", pairingState(st.CompanionAuthorizationEnabled()))
		return nil
	},
}

func pairingState(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func init() {
	rootCmd.AddCommand(pairingCmd)
	pairingCmd.AddCommand(pairingEnableCmd)
	pairingCmd.AddCommand(pairingDisableCmd)
	pairingCmd.AddCommand(pairingStatusCmd)
}
