package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bsaid97/go-glacier-merger/workflow"
)

var checkInventory string

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Validate glacier outlines and flowline trees",
	Example: "glaciermerge check --inventory data/RGI60-11",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := sessionOf(cmd)
		inv, err := s.loadInventory(cmd.Context(), checkInventory)
		if err != nil {
			return err
		}
		engine := workflow.NewEngine(s.cfg, nil, s.logger)
		diags, err := engine.Validate(cmd.Context(), inv.Glaciers)
		for _, d := range diags {
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
		}
		if err != nil {
			return fmt.Errorf("%d of %d glaciers failed validation", len(diags), len(inv.Glaciers))
		}
		s.logger.Info("all glaciers valid", "glaciers", len(inv.Glaciers))
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkInventory, "inventory", "", "Directory (any afs URL) of glacier directory files")
	_ = checkCmd.MarkFlagRequired("inventory")
	RootCmd.AddCommand(checkCmd)
}
