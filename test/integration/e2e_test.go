package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/23skdu/longbow-bodkin/internal/config"
	"github.com/23skdu/longbow-bodkin/internal/engine"
	"github.com/23skdu/longbow-bodkin/internal/events"
	"github.com/23skdu/longbow-bodkin/internal/modelfile"
	"github.com/23skdu/longbow-bodkin/internal/monitoring"
	"github.com/23skdu/longbow-bodkin/internal/server"
)

// testManifest is the two-layer model from scripts/gen_testmodel: with
// input 100,200,300 at scale 2 the hidden layer yields 23,29 and the
// output layer 4, argmax 0.
func testManifest() *modelfile.Manifest {
	return &modelfile.Manifest{
		Name:  "toynet",
		Scale: 2,
		Layers: []modelfile.LayerSpec{
			{
				Name: "dense1", In: 3, Out: 2,
				WeightMag:  []uint64{1, 2, 3, 4, 5, 6},
				WeightSign: []int{0, 0, 0, 0, 0, 0},
				BiasMag:    []uint64{1, 1},
				BiasSign:   []int{0, 0},
			},
			{
				Name: "dense2", In: 2, Out: 1,
				WeightMag:  []uint64{7, 8},
				WeightSign: []int{0, 0},
				BiasMag:    []uint64{1},
				BiasSign:   []int{0},
			},
		},
	}
}

// startServer writes the manifest to disk, loads it back, and serves
// the full HTTP stack the way bodkind wires it.
func startServer(t *testing.T, maxOps uint64) (*httptest.Server, *events.MemorySink) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "toynet.json")
	if err := testManifest().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m, err := modelfile.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g, err := m.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cfg := config.Default()
	cfg.ModelName = m.Name
	cfg.MaxOpsPerCall = maxOps
	sink := events.NewMemorySink()
	eng, err := engine.New(g, &cfg, sink)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ts := httptest.NewServer(server.New(eng, &cfg).Handler())
	t.Cleanup(ts.Close)
	return ts, sink
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

type result struct {
	Mag    []uint64 `json:"magnitude"`
	Sign   []int    `json:"sign"`
	Scale  uint32   `json:"scale"`
	Argmax *int     `json:"argmax"`
}

func decodeResult(t *testing.T, resp *http.Response) result {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var r result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return r
}

func TestPredictFromDiskManifest(t *testing.T) {
	ts, sink := startServer(t, 0)

	resp := postJSON(t, ts.URL+"/api/v1/predict", map[string]interface{}{
		"input_magnitude": []uint64{100, 200, 300},
		"input_sign":      []int{0, 0, 0},
	})
	res := decodeResult(t, resp)

	if len(res.Mag) != 1 || res.Mag[0] != 4 || res.Sign[0] != 0 || res.Scale != 2 {
		t.Fatalf("got %+v, want magnitude [4] sign [0] scale 2", res)
	}
	if res.Argmax == nil || *res.Argmax != 0 {
		t.Fatalf("argmax = %v, want 0", res.Argmax)
	}

	evs := sink.Events()
	if len(evs) != 1 || evs[0].Kind != events.KindPredictionCompleted {
		t.Fatalf("events = %+v, want one prediction_completed", evs)
	}
	if evs[0].Model != "toynet" {
		t.Fatalf("event model = %q, want toynet", evs[0].Model)
	}
}

// A budget of 3 ops rejects the one-shot pass (8 ops) but the chunked
// protocol still completes the same prediction.
func TestChunkedCompletesWhereOneShotCannot(t *testing.T) {
	ts, _ := startServer(t, 3)

	resp := postJSON(t, ts.URL+"/api/v1/predict", map[string]interface{}{
		"input_magnitude": []uint64{100, 200, 300},
		"input_sign":      []int{0, 0, 0},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("one-shot predict status = %d, want 413", resp.StatusCode)
	}

	planResp, err := http.Get(ts.URL + "/api/v1/chunk/plan?layer=0")
	if err != nil {
		t.Fatalf("GET plan: %v", err)
	}
	var plan struct {
		Ranges []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"ranges"`
	}
	if err := json.NewDecoder(planResp.Body).Decode(&plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	planResp.Body.Close()
	if len(plan.Ranges) != 2 {
		t.Fatalf("plan = %+v, want 2 chunks", plan.Ranges)
	}

	for _, r := range plan.Ranges {
		resp := postJSON(t, ts.URL+"/api/v1/chunk/compute", map[string]interface{}{
			"key":             "dense1",
			"input_magnitude": []uint64{100, 200, 300},
			"input_sign":      []int{0, 0, 0},
			"start":           r.Start,
			"end":             r.End,
			"activation":      "relu",
		})
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("chunk [%d,%d) status = %d: %s", r.Start, r.End, resp.StatusCode, body)
		}
		resp.Body.Close()
	}

	hidden := decodeResult(t, postJSON(t, ts.URL+"/api/v1/chunk/finalize", map[string]interface{}{
		"key": "dense1",
	}))
	if len(hidden.Mag) != 2 || hidden.Mag[0] != 23 || hidden.Mag[1] != 29 {
		t.Fatalf("hidden = %+v, want [23 29]", hidden)
	}

	final := decodeResult(t, postJSON(t, ts.URL+"/api/v1/predict/layer", map[string]interface{}{
		"layer_index":     1,
		"input_magnitude": hidden.Mag,
		"input_sign":      hidden.Sign,
	}))
	if len(final.Mag) != 1 || final.Mag[0] != 4 {
		t.Fatalf("final = %+v, want [4]", final)
	}
	if final.Argmax == nil || *final.Argmax != 0 {
		t.Fatalf("argmax = %v, want 0", final.Argmax)
	}
}

func TestIncrementalAccumulationOverHTTP(t *testing.T) {
	ts, _ := startServer(t, 4)

	inMag := []uint64{100, 200, 300}
	inSgn := []int{0, 0, 0}
	chunks := []struct{ inStart, width int }{{0, 2}, {2, 1}}
	for _, c := range chunks {
		resp := postJSON(t, ts.URL+"/api/v1/chunk/accumulate", map[string]interface{}{
			"key":             "dense1",
			"input_magnitude": inMag[c.inStart : c.inStart+c.width],
			"input_sign":      inSgn[c.inStart : c.inStart+c.width],
			"input_start":     c.inStart,
			"output_start":    0,
			"output_end":      2,
		})
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("accumulate at %d status = %d: %s", c.inStart, resp.StatusCode, body)
		}
		resp.Body.Close()
	}

	res := decodeResult(t, postJSON(t, ts.URL+"/api/v1/chunk/finalize", map[string]interface{}{
		"key":        "dense1",
		"mode":       "incremental",
		"activation": "relu",
	}))
	if len(res.Mag) != 2 || res.Mag[0] != 23 || res.Mag[1] != 29 || res.Scale != 2 {
		t.Fatalf("got %+v, want [23 29] at scale 2", res)
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	mon := monitoring.NewMonitor("test")
	mon.SetModelInfo(monitoring.ModelInfo{
		Loaded: true,
		Name:   "toynet",
		Layers: 2,
		Scale:  2,
	})
	ts := httptest.NewServer(mon.Handler())
	defer ts.Close()

	get := func(path string) *http.Response {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		return resp
	}

	resp := get("/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp = get("/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready status = %d, want 503", resp.StatusCode)
	}

	mon.SetReady(true)
	resp = get("/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz after ready status = %d, want 200", resp.StatusCode)
	}

	resp = get("/status")
	var status struct {
		Status string               `json:"status"`
		Model  monitoring.ModelInfo `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if status.Status != "healthy" || !status.Model.Loaded || status.Model.Name != "toynet" {
		t.Fatalf("status = %+v", status)
	}

	resp = get("/metrics")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "bodkin_") {
		t.Fatalf("metrics status = %d, want bodkin_ metrics in body", resp.StatusCode)
	}
}
