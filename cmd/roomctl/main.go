package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ko-stant/room-layout-sync/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roomctl",
		Short: "roomctl - inspect rooms and edit shared room layouts",
		Long: `roomctl builds room shells from room files, lists furniture types,
and joins a relay project to watch or place furniture.`,
		SilenceUsage: true,
	}

	// Offline tools
	rootCmd.AddCommand(cli.ShellCmd())
	rootCmd.AddCommand(cli.ValidateCmd())
	rootCmd.AddCommand(cli.CatalogCmd())

	// Relay clients
	rootCmd.AddCommand(cli.WatchCmd())
	rootCmd.AddCommand(cli.PlaceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
