package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/23skdu/longbow-bodkin/internal/engine"
	"github.com/23skdu/longbow-bodkin/internal/fixed"
	"github.com/23skdu/longbow-bodkin/internal/graph"
	"github.com/23skdu/longbow-bodkin/internal/partial"
)

type predictRequest struct {
	InputMag  []uint64 `json:"input_magnitude"`
	InputSign []int    `json:"input_sign"`
}

type predictLayerRequest struct {
	LayerIndex int      `json:"layer_index"`
	InputMag   []uint64 `json:"input_magnitude"`
	InputSign  []int    `json:"input_sign"`
}

type chunkComputeRequest struct {
	Key        string   `json:"key"`
	InputMag   []uint64 `json:"input_magnitude"`
	InputSign  []int    `json:"input_sign"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Activation string   `json:"activation"`
}

type accumulateRequest struct {
	Key         string   `json:"key"`
	InputMag    []uint64 `json:"input_magnitude"`
	InputSign   []int    `json:"input_sign"`
	InputStart  int      `json:"input_start"`
	OutputStart int      `json:"output_start"`
	OutputEnd   int      `json:"output_end"`
}

type finalizeRequest struct {
	Key string `json:"key"`
	// Mode "raw" (default) packages the accumulator as-is; "incremental"
	// applies bias, activation and rescale over input-range sums.
	Mode       string `json:"mode"`
	Activation string `json:"activation"`
}

// resultResponse is the wire form of an engine result. Argmax is null
// when not computed for this call or when no class qualified.
type resultResponse struct {
	Mag    []uint64 `json:"magnitude"`
	Sign   []int    `json:"sign"`
	Scale  uint32   `json:"scale"`
	Argmax *int     `json:"argmax"`
}

func toResponse(res *engine.Result) resultResponse {
	return resultResponse{
		Mag:    res.Mag,
		Sign:   fixed.SignsToInts(res.Sign),
		Scale:  res.Scale,
		Argmax: res.Argmax,
	}
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sgn, err := fixed.SignsFromInts(req.InputSign)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.Predict(r.Context(), req.InputMag, sgn)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (s *Server) handlePredictLayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req predictLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sgn, err := fixed.SignsFromInts(req.InputSign)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.PredictLayer(r.Context(), req.LayerIndex, req.InputMag, sgn)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (s *Server) handleChunkCompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chunkComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sgn, err := fixed.SignsFromInts(req.InputSign)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	act, err := graph.ParseActivation(req.Activation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.ChunkCompute(r.Context(), req.Key, req.InputMag, sgn, req.Start, req.End, act); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   req.Key,
		"start": req.Start,
		"end":   req.End,
	})
}

func (s *Server) handleAccumulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req accumulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sgn, err := fixed.SignsFromInts(req.InputSign)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.AccumulateRange(r.Context(), req.Key, req.InputMag, sgn,
		req.InputStart, req.OutputStart, req.OutputEnd); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":          req.Key,
		"input_start":  req.InputStart,
		"output_start": req.OutputStart,
		"output_end":   req.OutputEnd,
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var res *engine.Result
	var err error
	switch req.Mode {
	case "", "raw":
		res, err = s.engine.Finalize(r.Context(), req.Key)
	case "incremental":
		var act graph.Activation
		act, err = graph.ParseActivation(req.Activation)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err = s.engine.FinalizeIncremental(r.Context(), req.Key, act)
	default:
		writeError(w, http.StatusBadRequest, "mode must be raw or incremental")
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	layerIndex, err := strconv.Atoi(r.URL.Query().Get("layer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "layer query parameter must be an integer")
		return
	}

	ranges, err := s.engine.PlanChunks(layerIndex)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	type rangeDoc struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}
	docs := make([]rangeDoc, len(ranges))
	for i, rg := range ranges {
		docs[i] = rangeDoc{Start: rg.Start, End: rg.End}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"layer_index": layerIndex,
		"ranges":      docs,
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	g := s.engine.Graph()

	type layerDoc struct {
		Name string `json:"name"`
		In   int    `json:"in"`
		Out  int    `json:"out"`
	}
	layers := make([]layerDoc, 0, g.NumLayers())
	for _, l := range g.Layers() {
		layers = append(layers, layerDoc{Name: l.Name, In: l.In, Out: l.Out})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       s.engine.ModelName(),
		"scale":      g.Scale(),
		"input_dim":  g.InputDim(),
		"output_dim": g.OutputDim(),
		"layers":     layers,
	})
}

func (s *Server) handleAccumulators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type accDoc struct {
		Key   string `json:"key"`
		Layer string `json:"layer"`
		In    int    `json:"in"`
		Out   int    `json:"out"`
		Scale uint32 `json:"scale"`
	}
	keys := s.engine.Accumulators()
	docs := make([]accDoc, 0, len(keys))
	for _, key := range keys {
		a, err := s.engine.Accumulator(key)
		if err != nil {
			continue
		}
		docs = append(docs, accDoc{Key: a.Key, Layer: a.LayerName, In: a.In, Out: a.Out, Scale: a.Scale})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accumulators": docs})
}

// writeEngineError maps the error taxonomy onto HTTP statuses: geometry
// and config violations are the client's fault, missing keys are 404,
// oversized calls are 413, overflow is a 422 on otherwise valid input.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrNotFound), errors.Is(err, partial.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrBudgetExceeded):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, fixed.ErrOverflow):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, fixed.ErrShapeMismatch),
		errors.Is(err, fixed.ErrScaleMismatch),
		errors.Is(err, fixed.ErrRange),
		errors.Is(err, graph.ErrInvalidConfig),
		errors.Is(err, graph.ErrUnsupportedLayer):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
