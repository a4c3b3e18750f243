package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/utils"
)

type Error struct {
	Ref          int    `json:"ref"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckGeometry validates every polygonal feature of fc in parallel and
// returns one Error per invalid feature, ordered by feature index.
func CheckGeometry(ctx context.Context, pp *utils.ParallelProcessor, fc *geojson.FeatureCollection) ([]Error, error) {
	messages, err := utils.ProcessBatch(ctx, pp, fc.Features, func(_ context.Context, f *geojson.Feature) string {
		if err := checkFeature(f.Geometry); err != nil {
			return err.Error()
		}
		return ""
	}, "checking geometries")
	if err != nil {
		return nil, err
	}

	errors := []Error{}
	for i, msg := range messages {
		if msg != "" {
			errors = append(errors, Error{Ref: i, ErrorMessage: msg})
		}
	}
	return errors, nil
}

func checkFeature(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Polygon:
		return geometry.ValidatePolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			if err := geometry.ValidatePolygon(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) checkGeometryHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		http.Error(w, "ERROR: invalid feature collection: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("checking geometries", "features", len(fc.Features))

	errors, err := CheckGeometry(r.Context(), s.processor, fc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	out, _ := json.Marshal(errors)
	sendResponse(w, "application/json", out)
}
