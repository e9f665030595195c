// Package cmd wires the omegagate binary's cobra command tree: gateway
// (run the server), migrate (apply pending schema migrations), doctor
// (environment/config diagnostics), and pair (WhatsApp QR pairing).
//
// Grounded on the teacher's cmd/root.go persistent-flags + subcommand
// registration idiom.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/omegagate/cmd.Version=v1.0.0"
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "omegagate",
	Short: "omegagate — personal AI agent gateway",
	Long:  "omegagate connects messaging channels to pluggable LLM backends behind a single-operator message pipeline.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.toml or $OMEGAGATE_CONFIG)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(pairCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("omegagate " + Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("OMEGAGATE_CONFIG"); v != "" {
		return v
	}
	return "config.toml"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
