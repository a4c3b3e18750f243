package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/bsaid97/go-glacier-merger/handlers"
	"github.com/bsaid97/go-glacier-merger/utils"
	"github.com/bsaid97/go-glacier-merger/workflow"
)

const outputMode = 0o644

var (
	mergeInventory string
	mergeMain      string
	mergePrimary   string
	mergeReport    string
	mergeShapefile string
	mergeOutlines  string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge tributaries into their receiving glaciers",
	Long: `Loads every glacier directory under --inventory, attaches tributaries to
the primary glacier (or selects primaries largest area first when --primary
is empty) and writes the merge report.`,
	Example: "glaciermerge merge --inventory data/RGI60-11 --main RGI60-11.01450 --primary RGI60-11.01450",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := sessionOf(cmd)
		ctx := cmd.Context()
		inv, err := s.loadInventory(ctx, mergeInventory)
		if err != nil {
			return err
		}
		req, err := handlers.NewRequest(inv, mergeMain, mergePrimary)
		if err != nil {
			return err
		}
		engine, err := s.newEngine(ctx)
		if err != nil {
			return err
		}
		res, err := engine.Merge(ctx, req)
		if err != nil {
			return err
		}

		report, err := workflow.NewReport(res).YAML()
		if err != nil {
			return err
		}
		if mergeReport == "" || mergeReport == "-" {
			_, err = os.Stdout.Write(report)
			if err != nil {
				return err
			}
		} else if err := s.upload(ctx, mergeReport, report); err != nil {
			return err
		}

		if mergeShapefile != "" {
			name := strings.TrimSuffix(path.Base(mergeShapefile), ".zip")
			zipData, err := utils.GenerateShapefileZip(name, report, workflow.LineFeatures(res))
			if err != nil {
				return err
			}
			if err := s.upload(ctx, mergeShapefile, zipData); err != nil {
				return err
			}
		}
		if mergeOutlines != "" {
			data, err := json.Marshal(workflow.Outlines(res))
			if err != nil {
				return errors.Wrap(err, "encoding outlines")
			}
			if err := s.upload(ctx, mergeOutlines, data); err != nil {
				return err
			}
		}
		s.logger.Info("merge finished", "entities", len(res.All()))
		return nil
	},
}

func (s *session) upload(ctx context.Context, URL string, data []byte) error {
	if err := s.fs.Upload(ctx, URL, outputMode, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "writing %s", URL)
	}
	s.logger.Info("wrote output", "url", URL, "bytes", len(data))
	return nil
}

func init() {
	mergeCmd.Flags().StringVar(&mergeInventory, "inventory", "", "Directory (any afs URL) of glacier directory files")
	mergeCmd.Flags().StringVar(&mergeMain, "main", "", "Glacier defining the merge domain (default: first loaded)")
	mergeCmd.Flags().StringVar(&mergePrimary, "primary", "", "Glacier to merge into; empty selects primaries automatically")
	mergeCmd.Flags().StringVar(&mergeReport, "report", "-", "Report URL, - for stdout")
	mergeCmd.Flags().StringVar(&mergeShapefile, "shapefile", "", "Write the merged networks as a zipped shapefile to this URL")
	mergeCmd.Flags().StringVar(&mergeOutlines, "outlines", "", "Write the merged outlines as GeoJSON to this URL")
	_ = mergeCmd.MarkFlagRequired("inventory")
	RootCmd.AddCommand(mergeCmd)
}
