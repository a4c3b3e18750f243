package utils

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// LineFeature is one flowline segment written as a shapefile record.
type LineFeature struct {
	Line      orb.LineString
	Glacier   string
	Flowline  int
	FlowsTo   string // receiving node, empty for the root
	JoinPoint int
	Ice       int
	Length    float64
	MeanWidth float64
	BedShape  string
}

var lineFields = []shp.Field{
	shp.StringField("GLACIER", 50),
	shp.NumberField("FLOWLINE", 10),
	shp.StringField("FLOWS_TO", 60),
	shp.NumberField("JOIN_PT", 10),
	shp.NumberField("ICE_PTS", 10),
	shp.FloatField("LENGTH", 15, 3),
	shp.FloatField("WIDTH", 15, 3),
	shp.StringField("BED", 12),
}

// GenerateShapefileZip creates a zip holding the report and a polyline
// shapefile of the features, all named after name.
func GenerateShapefileZip(name string, report []byte, features []LineFeature) ([]byte, error) {
	// Create a buffer to write the zip file
	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	reportFile, err := zipWriter.Create(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to create report file in zip: %w", err)
	}
	if _, err = reportFile.Write(report); err != nil {
		return nil, fmt.Errorf("failed to write report to zip: %w", err)
	}

	if err = addShapefileToZip(zipWriter, name, features); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %w", err)
	}

	if err = zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}

	return zipBuffer.Bytes(), nil
}

// addShapefileToZip creates shapefile components and adds them to the zip
func addShapefileToZip(zipWriter *zip.Writer, name string, features []LineFeature) error {
	// Create temporary directory for shapefile generation
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, name+".shp")
	if err = generateShapefile(shapefilePath, features); err != nil {
		return fmt.Errorf("failed to generate shapefile: %w", err)
	}

	// Add shapefile components to zip
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		filePath := strings.TrimSuffix(shapefilePath, ".shp") + ext

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			continue
		}

		fileContent, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}

		zipFile, err := zipWriter.Create(name + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}

		if _, err = zipFile.Write(fileContent); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}

	return nil
}

// generateShapefile writes features as a POLYLINE shapefile
func generateShapefile(shapefilePath string, features []LineFeature) error {
	if len(features) == 0 {
		return fmt.Errorf("no features to write to shapefile")
	}

	shape, err := shp.Create(shapefilePath, shp.POLYLINE)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}
	defer shape.Close()

	if err = shape.SetFields(lineFields); err != nil {
		return fmt.Errorf("failed to set fields: %w", err)
	}

	for _, f := range features {
		points := make([]shp.Point, 0, len(f.Line))
		for _, p := range f.Line {
			points = append(points, shp.Point{X: p[0], Y: p[1]})
		}
		row := int(shape.Write(shp.NewPolyLine([][]shp.Point{points})))

		values := []interface{}{f.Glacier, f.Flowline, f.FlowsTo, f.JoinPoint, f.Ice, f.Length, f.MeanWidth, f.BedShape}
		for field, value := range values {
			if err := shape.WriteAttribute(row, field, value); err != nil {
				return fmt.Errorf("failed to write attribute %d of %s/%d: %w", field, f.Glacier, f.Flowline, err)
			}
		}
	}

	return nil
}
