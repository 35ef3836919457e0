package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geosight/internal/domain"
)

// handleReport builds a site report for lat/lon or a place name.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var (
		report domain.SiteReport
		err    error
	)

	if place := strings.TrimSpace(r.URL.Query().Get("place")); place != "" {
		report, err = s.analyzer.AnalyzePlace(r.Context(), place)
	} else {
		var p domain.GeoPoint
		p, err = parsePoint(r)
		if err == nil {
			report, err = s.analyzer.Analyze(r.Context(), p)
		}
	}
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// handleMap returns the visualization layers for a point.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	p, err := parsePoint(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	view, err := s.maps.ComposeMap(r.Context(), p)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

// handleClassify classifies index values or raw band reflectances.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	ix, err := parseIndices(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"class":      s.thresholds.Classify(ix),
		"indices":    ix,
		"thresholds": s.thresholds,
	})
}

// handleSoil resolves a USDA texture class code.
func (s *Server) handleSoil(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["code"]
	code, err := strconv.Atoi(raw)
	if err != nil {
		s.handleError(w, &domain.ValidationError{
			Field:      "code",
			Value:      raw,
			Constraint: "integer",
			Message:    "soil code must be an integer",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, domain.ResolveSoil(code, true))
}

// handleReference returns the reference dataset load state.
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	info := s.catalog.Info(r.Context())

	response := map[string]interface{}{
		"status":   info.Status,
		"sources":  info.Sources,
		"srid":     info.SRID,
		"features": info.Features,
	}
	if info.Error != "" {
		response["error"] = info.Error
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":             boolToStatus(details.Healthy),
		"ready":              details.Ready,
		"reference_status":   details.ReferenceStatus,
		"reference_features": details.ReferenceFeatures,
		"components":         details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// parsePoint reads the lat and lon query parameters.
func parsePoint(r *http.Request) (domain.GeoPoint, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		return domain.GeoPoint{}, &domain.ValidationError{
			Field:      "lat,lon",
			Constraint: "required",
			Message:    "coordinates required: use lat/lon or place",
		}
	}

	lat, err := parseFloat(q.Get("lat"), "lat")
	if err != nil {
		return domain.GeoPoint{}, err
	}
	lon, err := parseFloat(q.Get("lon"), "lon")
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return domain.NewGeoPoint(lat, lon)
}

// parseIndices accepts either ndvi/ndwi/ndbi or the b3/b4/b8/b11 bands.
func parseIndices(r *http.Request) (domain.IndexSet, error) {
	q := r.URL.Query()

	if q.Get("ndvi") != "" || q.Get("ndwi") != "" || q.Get("ndbi") != "" {
		var (
			ix     domain.IndexSet
			fields = []struct {
				name string
				dst  *float64
			}{
				{"ndvi", &ix.NDVI},
				{"ndwi", &ix.NDWI},
				{"ndbi", &ix.NDBI},
			}
		)
		for _, f := range fields {
			v, err := parseFloat(q.Get(f.name), f.name)
			if err != nil {
				return domain.IndexSet{}, err
			}
			*f.dst = v
		}
		return ix, nil
	}

	bands := make(domain.SpectralBands, len(domain.IndexBands))
	for _, band := range domain.IndexBands {
		name := strings.ToLower(string(band))
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := parseFloat(raw, name)
		if err != nil {
			return domain.IndexSet{}, err
		}
		bands[band] = v
	}
	if len(bands) == 0 {
		return domain.IndexSet{}, &domain.ValidationError{
			Field:      "ndvi,ndwi,ndbi",
			Constraint: "required",
			Message:    "indices required: use ndvi/ndwi/ndbi or b3/b4/b8/b11",
		}
	}

	ix, err := domain.ComputeIndices(bands)
	if err != nil {
		return domain.IndexSet{}, &domain.ValidationError{
			Field:      "bands",
			Constraint: "b3,b4,b8,b11",
			Message:    err.Error(),
		}
	}
	return ix, nil
}

func parseFloat(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &domain.ValidationError{
			Field:      field,
			Value:      raw,
			Constraint: "number",
			Message:    "invalid " + field + " parameter",
		}
	}
	return v, nil
}

// handleError maps domain errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLocationNotFound):
		s.writeError(w, http.StatusNotFound, "Location not found")
	case errors.Is(err, domain.ErrTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "Upstream timeout")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
