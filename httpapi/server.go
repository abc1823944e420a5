// Package httpapi implements the HTTP surface wrapping the registration
// core (spec.md §6 "Wire-level external surfaces"): POST
// /process_point_clouds and GET /health.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"goji.io"
	"goji.io/pat"

	"github.com/viamrobotics/pcregister/logging"
	"github.com/viamrobotics/pcregister/pointcloud"
	"github.com/viamrobotics/pcregister/registration"
)

// pointsRequest is the JSON body of POST /process_point_clouds.
type pointsRequest struct {
	SourcePoints [][3]float64        `json:"source_points"`
	TargetPoints [][3]float64        `json:"target_points"`
	Options      *registration.Params `json:"options,omitempty"`
}

// pointsResponse echoes the output contract's field names (spec.md §6).
type pointsResponse struct {
	Transformation [][4]float64 `json:"transformation"`
	InlierRMSE     float64      `json:"inlier_rmse"`
	MaxError       float64      `json:"max_error"`
	MeanError      float64      `json:"mean_error"`
	MedianError    float64      `json:"median_error"`
	IsSuccess      bool         `json:"is_success"`
	Method         string       `json:"method"`
	Iterations     int          `json:"iterations"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Server wraps a goji mux exposing the registration core over HTTP.
type Server struct {
	mux    *goji.Mux
	log    logging.Logger
	params registration.Params
}

// NewServer builds a Server with default Params used when a request omits
// "options".
func NewServer(log logging.Logger, defaults registration.Params) *Server {
	s := &Server{mux: goji.NewMux(), log: log, params: defaults}
	s.mux.HandleFunc(pat.Post("/process_point_clouds"), s.handleProcess)
	s.mux.HandleFunc(pat.Get("/health"), s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler by delegating to the internal mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := s.log.Sublogger("httpapi")

	var req pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warnf("request %s: invalid JSON body: %v", requestID, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	srcBuf, err := triplesToBuf(req.SourcePoints)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid source_points: " + err.Error()})
		return
	}
	tgtBuf, err := triplesToBuf(req.TargetPoints)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid target_points: " + err.Error()})
		return
	}

	src, err := pointcloud.New(srcBuf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tgt, err := pointcloud.New(tgtBuf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	params := s.params
	if req.Options != nil {
		params = *req.Options
	}

	res, err := registration.Register(src, tgt, params)
	if err != nil {
		log.Warnf("request %s: registration validation failed: %v", requestID, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	log.Infof("request %s: registration finished: %s, rmse=%g", requestID, res.ICP.TerminationReason, res.Metrics.RMSE)

	writeJSON(w, http.StatusOK, pointsResponse{
		Transformation: transformMatrix(res.Transform),
		InlierRMSE:     res.Metrics.RMSE,
		MaxError:       res.Metrics.Max,
		MeanError:      res.Metrics.Mean,
		MedianError:    res.Metrics.Median,
		IsSuccess:      res.ICP.Converged,
		Method:         "pca+icp",
		Iterations:     res.ICP.Iterations,
	})
}

func triplesToBuf(triples [][3]float64) ([]float32, error) {
	if len(triples) < 3 {
		return nil, errTooFewPoints
	}
	buf := make([]float32, 0, 3*len(triples))
	for _, p := range triples {
		buf = append(buf, float32(p[0]), float32(p[1]), float32(p[2]))
	}
	return buf, nil
}

func transformMatrix(t pointcloud.Transform) [][4]float64 {
	return [][4]float64{
		{t.R.At(0, 0), t.R.At(0, 1), t.R.At(0, 2), t.T.X},
		{t.R.At(1, 0), t.R.At(1, 1), t.R.At(1, 2), t.T.Y},
		{t.R.At(2, 0), t.R.At(2, 1), t.R.At(2, 2), t.T.Z},
		{0, 0, 0, 1},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
