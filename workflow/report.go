package workflow

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/network"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// Report is the serialisable summary of a merge run.
type Report struct {
	Entities    []EntityReport       `yaml:"entities"`
	Diagnostics []glacier.Diagnostic `yaml:"diagnostics,omitempty"`
}

// EntityReport describes one merged entity.
type EntityReport struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Region      string               `yaml:"region"`
	Area        float64              `yaml:"area_km2"`
	Centroid    [2]float64           `yaml:"centroid"`
	Terminus    string               `yaml:"terminus"`
	Members     []string             `yaml:"members"`
	Domain      [4]float64           `yaml:"domain"`
	Attachments []network.Attachment `yaml:"attachments,omitempty"`
	Rejected    []network.Rejection  `yaml:"rejected,omitempty"`
	Nodes       []NodeReport         `yaml:"nodes"`
	Diagnostics []glacier.Diagnostic `yaml:"diagnostics,omitempty"`
}

// NodeReport describes one flowline segment of a merged network.
type NodeReport struct {
	ID          network.NodeID  `yaml:"id"`
	FlowsTo     *network.NodeID `yaml:"flows_to,omitempty"`
	Point       int             `yaml:"point,omitempty"`
	Tributaries int             `yaml:"tributaries"`
	Points      int             `yaml:"points"`
	Ice         int             `yaml:"ice_points"`
	Length      float64         `yaml:"length_m"`
	MeanWidth   float64         `yaml:"mean_width_m"`
	Rectangular int             `yaml:"rectangular_points"`
}

// NewReport summarises a merge result.
func NewReport(res Result) Report {
	var r Report
	if c, ok := res.(Collection); ok {
		r.Diagnostics = c.Diagnostics
	}
	for _, m := range res.All() {
		r.Entities = append(r.Entities, entityReport(m))
	}
	return r
}

func entityReport(m Merge) EntityReport {
	e := m.Entity
	er := EntityReport{
		ID:          e.ID,
		Name:        e.Name,
		Region:      e.Region,
		Area:        e.Area,
		Centroid:    [2]float64{e.Centroid[0], e.Centroid[1]},
		Terminus:    e.Terminus.String(),
		Members:     e.Members,
		Domain:      [4]float64{e.Domain.Min[0], e.Domain.Min[1], e.Domain.Max[0], e.Domain.Max[1]},
		Attachments: m.Attachments,
		Rejected:    m.Rejected,
		Diagnostics: m.Diagnostics,
	}
	if e.Network == nil {
		return er
	}
	for _, id := range e.Network.Order() {
		n, _ := e.Network.Node(id)
		nr := NodeReport{
			ID:          id,
			Points:      len(n.Line.Points),
			Ice:         n.Ice,
			Length:      n.Line.Length(),
			Tributaries: len(e.Network.Upstream(id)),
		}
		if edge, ok := e.Network.Downstream(id); ok {
			to := edge.To
			nr.FlowsTo = &to
			nr.Point = edge.Point
		}
		if len(n.Line.Widths) > 0 {
			nr.MeanWidth = lo.Sum(n.Line.Widths) / float64(len(n.Line.Widths))
		}
		nr.Rectangular = lo.CountBy(n.Line.Shapes, func(s glacier.BedShape) bool { return s == glacier.BedRectangular })
		er.Nodes = append(er.Nodes, nr)
	}
	return er
}

// YAML encodes the report.
func (r Report) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, errors.Wrap(err, "encoding report")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encoding report")
	}
	return buf.Bytes(), nil
}

// LineFeatures flattens the networks of a result into shapefile records.
func LineFeatures(res Result) []utils.LineFeature {
	var out []utils.LineFeature
	for _, m := range res.All() {
		net := m.Entity.Network
		if net == nil {
			continue
		}
		for _, id := range net.Order() {
			n, _ := net.Node(id)
			f := utils.LineFeature{
				Line:     n.Line.Points,
				Glacier:  id.Glacier,
				Flowline: id.Flowline,
				Ice:      n.Ice,
				Length:   n.Line.Length(),
				BedShape: dominantShape(n.Line.Shapes).String(),
			}
			if edge, ok := net.Downstream(id); ok {
				f.FlowsTo = edge.To.String()
				f.JoinPoint = edge.Point
			}
			if len(n.Line.Widths) > 0 {
				f.MeanWidth = lo.Sum(n.Line.Widths) / float64(len(n.Line.Widths))
			}
			out = append(out, f)
		}
	}
	return out
}

func dominantShape(shapes []glacier.BedShape) glacier.BedShape {
	rect := lo.CountBy(shapes, func(s glacier.BedShape) bool { return s == glacier.BedRectangular })
	if rect*2 > len(shapes) {
		return glacier.BedRectangular
	}
	return glacier.BedParabolic
}

// Outlines returns the merged outlines of a result as GeoJSON features.
func Outlines(res Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range res.All() {
		e := m.Entity
		var geom orb.Geometry = e.Outline
		if len(e.Outline) == 1 {
			geom = e.Outline[0]
		}
		f := geojson.NewFeature(geom)
		f.Properties["RGIId"] = e.ID
		f.Properties["Name"] = e.Name
		f.Properties["O1Region"] = e.Region
		f.Properties["Area"] = e.Area
		f.Properties["CenLon"] = e.Centroid[0]
		f.Properties["CenLat"] = e.Centroid[1]
		f.Properties["TermType"] = int(e.Terminus)
		f.Properties["Members"] = e.Members
		fc.Append(f)
	}
	return fc
}
