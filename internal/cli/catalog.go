package cli

import (
	"fmt"
	"log"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ko-stant/room-layout-sync/internal/furniture"
)

func loadCatalog(cmd *cobra.Command, dir string) (*furniture.Catalog, error) {
	catalog := furniture.NewCatalog(log.New(cmd.ErrOrStderr(), "catalog: ", 0))
	if err := catalog.LoadDir(dir); err != nil {
		return nil, err
	}
	return catalog, nil
}

// CatalogCmd lists the furniture types defined in a directory.
func CatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog DIR",
		Short: "List furniture types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(cmd, args[0])
			if err != nil {
				return err
			}
			defs := catalog.Definitions()
			out := cmd.OutOrStdout()
			if len(defs) == 0 {
				fmt.Fprintln(out, color.New(color.FgYellow).Sprint("no furniture definitions found"))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tSIZE (m)\tCOLOR")
			for _, d := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f x %.2f x %.2f\t%s\n",
					d.ID, d.Name, d.Category,
					d.HalfExtents.X*2, d.HalfExtents.Y*2, d.HalfExtents.Z*2, d.DefaultColor)
			}
			return w.Flush()
		},
	}
}
