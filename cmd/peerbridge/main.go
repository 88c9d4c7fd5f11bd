package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	V "github.com/relativeprotocol/peerbridge/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           V.Name,
	Short:         "Peer-to-peer messaging bridge over QUIC",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), V.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.AddCommand(versionCmd, consoleCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
