package handlers

import (
	"bytes"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/intersects"
	"github.com/bsaid97/go-glacier-merger/inventory"
	"github.com/bsaid97/go-glacier-merger/utils"
	"github.com/bsaid97/go-glacier-merger/workflow"
)

// glacierKey is the multipart field carrying glacier directory files.
const glacierKey = "glacier"

// decodeUploads parses every uploaded glacier directory file.
func decodeUploads(files [][]byte) (inventory.Inventory, error) {
	if len(files) == 0 {
		return inventory.Inventory{}, errors.Wrap(glacier.ErrEmptyInput, "no glacier files uploaded")
	}
	inv := inventory.Inventory{Domains: glacier.Domains{}}
	for i, data := range files {
		g, dom, err := inventory.Decode(data)
		if err != nil {
			return inventory.Inventory{}, errors.Wrapf(err, "upload %d", i)
		}
		inv.Glaciers = append(inv.Glaciers, g)
		if dom != nil {
			inv.Domains[g.ID()] = *dom
		}
	}
	return inv, nil
}

// NewRequest builds a merge request from an inventory. An empty main
// selects the first glacier.
func NewRequest(inv inventory.Inventory, main, primary string) (workflow.Request, error) {
	if len(inv.Glaciers) == 0 {
		return workflow.Request{}, errors.Wrap(glacier.ErrEmptyInput, "no glaciers")
	}
	if main == "" {
		main = inv.Glaciers[0].ID()
	}
	m, ok := inv.Get(main)
	if !ok {
		return workflow.Request{}, errors.Wrapf(glacier.ErrEmptyInput, "main glacier %s not found", main)
	}
	return workflow.Request{
		Main:       m,
		Candidates: lo.Filter(inv.Glaciers, func(g glacier.Glacier, _ int) bool { return g.ID() != main }),
		Primary:    primary,
		Domains:    inv.Domains,
	}, nil
}

// statusOf maps merge errors onto HTTP status codes.
func statusOf(err error) int {
	switch glacier.KindOf(err) {
	case glacier.KindEmptyInput, glacier.KindMalformedGeometry:
		return http.StatusBadRequest
	case glacier.KindAttributeConflict:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) mergeHandler(w http.ResponseWriter, r *http.Request) {
	form, err := utils.ReadMultiPartForm(r, glacierKey)
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), http.StatusBadRequest)
		return
	}
	inv, err := decodeUploads(form.Files)
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), statusOf(err))
		return
	}
	req, err := NewRequest(inv, form.Properties.Main, form.Properties.Primary)
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), statusOf(err))
		return
	}

	var detector geometry.Detector
	if s.cfg.UseIntersects {
		table, err := intersects.Read(r.Context(), s.fs, s.cfg.IntersectsURL, s.cfg.Tolerance, s.logger)
		if err != nil {
			http.Error(w, "ERROR: "+err.Error(), statusOf(err))
			return
		}
		detector = table
	}
	engine := workflow.NewEngine(s.cfg, detector, s.logger)
	res, err := engine.Merge(r.Context(), req)
	if err != nil {
		s.logger.Warn("merge failed", "main", req.Main.ID(), "error", err)
		http.Error(w, "ERROR: "+err.Error(), statusOf(err))
		return
	}

	report, err := workflow.NewReport(res).YAML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if form.Properties.Format != "zip" {
		sendResponse(w, "application/yaml", report)
		return
	}

	name := req.Main.ID() + "_merged"
	zipData, err := utils.GenerateShapefileZip(name, report, workflow.LineFeatures(res))
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("merge complete, sending zip response", "entities", len(res.All()), "bytes", len(zipData))
	sendZipResponse(w, name, zipData)
}

func (s *Server) intersectsHandler(w http.ResponseWriter, r *http.Request) {
	form, err := utils.ReadMultiPartForm(r, glacierKey)
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), http.StatusBadRequest)
		return
	}
	inv, err := decodeUploads(form.Files)
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), statusOf(err))
		return
	}

	table, diags, err := intersects.Compute(r.Context(), inv.Glaciers, geometry.Intersector{Cells: s.cfg.Tolerance}, s.processor)
	if err != nil {
		http.Error(w, "ERROR: "+err.Error(), statusOf(err))
		return
	}
	for _, d := range diags {
		s.logger.Warn("intersects diagnostic", "diagnostic", d.String())
	}

	var buf bytes.Buffer
	if err := intersects.Encode(&buf, table); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendResponse(w, "application/octet-stream", buf.Bytes())
}
