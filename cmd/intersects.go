package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/intersects"
	"github.com/bsaid97/go-glacier-merger/utils"
)

var (
	intersectsInventory string
	intersectsOut       string
)

var intersectsCmd = &cobra.Command{
	Use:   "intersects",
	Short: "Precompute pairwise glacier intersections",
	Long: `Detects boundary and flow intersections between every pair of glaciers
under --inventory and writes them as a FlatGeobuf layer. Point a merge at the
file with use_intersects and intersects_url.`,
	Example: "glaciermerge intersects --inventory data/RGI60-11 --out data/intersects_1cell.fgb",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := sessionOf(cmd)
		inv, err := s.loadInventory(cmd.Context(), intersectsInventory)
		if err != nil {
			return err
		}
		pp := utils.NewParallelProcessor(s.cfg.Workers, s.logger)
		table, diags, err := intersects.Compute(cmd.Context(), inv.Glaciers, geometry.Intersector{Cells: s.cfg.Tolerance}, pp)
		if err != nil {
			return err
		}
		for _, d := range diags {
			s.logger.Warn("intersects diagnostic", "diagnostic", d.String())
		}
		return intersects.Write(cmd.Context(), s.fs, intersectsOut, table, s.logger)
	},
}

func (s *session) readIntersects(ctx context.Context) (*intersects.Table, error) {
	return intersects.Read(ctx, s.fs, s.cfg.IntersectsURL, s.cfg.Tolerance, s.logger)
}

func init() {
	intersectsCmd.Flags().StringVar(&intersectsInventory, "inventory", "", "Directory (any afs URL) of glacier directory files")
	intersectsCmd.Flags().StringVar(&intersectsOut, "out", "", "Output FlatGeobuf URL")
	_ = intersectsCmd.MarkFlagRequired("inventory")
	_ = intersectsCmd.MarkFlagRequired("out")
	RootCmd.AddCommand(intersectsCmd)
}
