package handlers

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// dissolvePrecision is the number of decimals kept in dissolved outlines.
const dissolvePrecision = 8

// Dissolve unions every polygonal feature of fc into one multipolygon.
func Dissolve(fc *geojson.FeatureCollection) (orb.MultiPolygon, error) {
	var polys []orb.Polygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
	}
	if len(polys) == 0 {
		return nil, errors.Wrap(glacier.ErrEmptyInput, "no polygons to dissolve")
	}
	union, err := geometry.Dissolve(polys)
	if err != nil {
		return nil, err
	}
	return utils.TruncateGeometry(union, dissolvePrecision).(orb.MultiPolygon), nil
}

func (s *Server) dissolveHandler(w http.ResponseWriter, r *http.Request) {
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

	union, err := Dissolve(fc)
	if err != nil {
		s.logger.Warn("dissolve failed", "features", len(fc.Features), "error", err)
		http.Error(w, "ERROR: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.logger.Info("union complete", "features", len(fc.Features), "parts", len(union))

	out, err := geojson.NewGeometry(union).MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendResponse(w, "application/json", out)
}
