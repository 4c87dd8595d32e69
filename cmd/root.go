package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hfxdb/hfx/cmd/bench"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hfx",
		Short: "in-memory field store with per-field expiration",
		Long: fmt.Sprintf(`hfx (v%s)

An in-memory store for named fields with optional per-field TTLs.
Expired fields are masked immediately on the read path and reclaimed
in bounded batches by background sweepers driven by an adaptive
expiration index.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hfx",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hfx v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
