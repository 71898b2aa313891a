package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage companion app tokens",
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openSettings(cfg)
		if err != nil {
			return err
		}
		store, closeStore, err := openTokens(cfg, st)
		if err != nil {
			return err
		}
		defer closeStore()

		list, err := store.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No tokens issued.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP\tISSUED")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.AppID, t.IssuedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var tokensRevokeCmd = &cobra.Command{
	Use:   "revoke [token-id]",
	Short: "Revoke a token by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openSettings(cfg)
		if err != nil {
			return err
		}
		store, closeStore, err := openTokens(cfg, st)
		if err != nil {
			return err
		}
		defer closeStore()

		ok, err := store.Revoke(args[0])
		if err != nil {
			return fmt.Errorf("revoke failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("token not found: %s", args[0])
		}
		fmt.Printf("Revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensRevokeCmd)
}
