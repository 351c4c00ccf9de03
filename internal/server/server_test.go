package server

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/gin-gonic/gin"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/inference"
	"github.com/janpfeifer/screenGo/internal/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func trainedService(t *testing.T) *inference.Service {
	cfg := config.Default().Training
	cfg.Learners = []string{"rf:n_estimators=10", "gb:n_estimators=20", "lr:max_iter=200"}
	cfg.ImportanceEstimators = 0
	result, err := trainer.Train(context.Background(), &cfg, dataset.Synthetic(200, 42))
	require.NoError(t, err)
	bundle := &artifacts.Bundle{Model: result.Model, FeatureNames: result.FeatureNames}
	return inference.NewFromBundle(bundle, config.DefaultThresholds)
}

func unavailableService(t *testing.T) *inference.Service {
	cfg := config.Default().Serving
	cfg.Models = filepath.Join(t.TempDir(), "missing")
	return inference.New(&cfg)
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return w.Code, resp
}

const (
	typicalBody = `{"eye_contact": 1, "responds_name": 1, "points_to_objects": 1, "pretend_play": 1,
		"repetitive_behaviour": 0, "sensory_sensitivity": 0, "prefers_alone": 0, "gestures": 1,
		"delayed_speech": 0, "restricted_interests": 0}`
	concernBody = `{"eye_contact": 0, "responds_name": 0, "points_to_objects": 0, "pretend_play": 0,
		"repetitive_behaviour": 1, "sensory_sensitivity": 1, "prefers_alone": 1, "gestures": 0,
		"delayed_speech": 1, "restricted_interests": 1}`
)

func TestAvailable(t *testing.T) {
	s := New(trainedService(t))

	code, resp := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["model_loaded"])

	code, _ = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	code, resp = do(t, s, http.MethodGet, "/questions", "")
	assert.Equal(t, http.StatusOK, code)
	questions := resp["questions"].([]any)
	require.Len(t, questions, 10)
	assert.Equal(t, "eye_contact", questions[0].(map[string]any)["field"])
	assert.NotEmpty(t, questions[0].(map[string]any)["text"])

	code, resp = do(t, s, http.MethodPost, "/predict", typicalBody)
	require.Equal(t, http.StatusOK, code, "response: %v", resp)
	assert.Equal(t, "Low", resp["risk_level"])
	assert.Equal(t, float64(0), resp["label"])
	assert.NotEmpty(t, resp["recommendation"])
	assert.NotEmpty(t, resp["explanation"])
	assert.Equal(t, []any{}, resp["top_features"])
	lowProb := resp["probability"].(float64)

	code, resp = do(t, s, http.MethodPost, "/predict", concernBody)
	require.Equal(t, http.StatusOK, code, "response: %v", resp)
	assert.Contains(t, []any{"Medium", "High"}, resp["risk_level"])
	assert.Greater(t, resp["probability"].(float64), lowProb)

	// prefers_alone is optional, and points_objects is an alias of points_to_objects.
	body := strings.Replace(typicalBody, `"prefers_alone": 0,`, "", 1)
	body = strings.Replace(body, `"points_to_objects"`, `"points_objects"`, 1)
	code, resp = do(t, s, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, code, "response: %v", resp)
	assert.Equal(t, lowProb, resp["probability"])

	// Metrics were not loaded with the bundle.
	code, _ = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestValidation(t *testing.T) {
	s := New(trainedService(t))
	for ii, test := range []struct {
		body      string
		wantField string
		wantRule  string
	}{
		{strings.Replace(typicalBody, `"gestures": 1`, `"gestures": 2`, 1), "gestures", "oneof"},
		{strings.Replace(typicalBody, `"eye_contact": 1,`, "", 1), "eye_contact", "required"},
		{strings.Replace(typicalBody, `"prefers_alone": 0`, `"prefers_alone": -1`, 1), "prefers_alone", "oneof"},
		{strings.Replace(typicalBody, `"points_to_objects": 1,`, "", 1), "points_to_objects", "required"},
	} {
		code, resp := do(t, s, http.MethodPost, "/predict", test.body)
		require.Equal(t, http.StatusBadRequest, code, "test #%d", ii)
		details, ok := resp["details"].([]any)
		require.True(t, ok, "test #%d: %v", ii, resp)
		require.NotEmpty(t, details, "test #%d", ii)
		first := details[0].(map[string]any)
		assert.Equal(t, test.wantField, first["field"], "test #%d", ii)
		assert.Equal(t, test.wantRule, first["rule"], "test #%d", ii)
	}

	// Malformed JSON and wrong types.
	for _, body := range []string{`{`, `{"eye_contact": "yes"}`, `[]`} {
		code, resp := do(t, s, http.MethodPost, "/predict", body)
		assert.Equal(t, http.StatusBadRequest, code, "body %q", body)
		assert.NotEmpty(t, resp["message"], "body %q", body)
	}
}

func TestUnavailable(t *testing.T) {
	s := New(unavailableService(t))
	code, resp := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unavailable", resp["status"])
	assert.Equal(t, false, resp["model_loaded"])

	code, _ = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, resp = do(t, s, http.MethodPost, "/predict", typicalBody)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "model not available", resp["error"])

	code, _ = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	// Questions don't depend on the model.
	code, _ = do(t, s, http.MethodGet, "/questions", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetrics(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Training.Data = filepath.Join(dir, "data.csv")
	cfg.Training.Models = filepath.Join(dir, "models")
	cfg.Training.Learners = []string{"rf:n_estimators=5", "lr:max_iter=100"}
	cfg.Training.ImportanceEstimators = 5
	require.NoError(t, dataset.Synthetic(150, 42).Save(cfg.Training.Data))
	result, err := trainer.Run(context.Background(), &cfg.Training)
	require.NoError(t, err)

	cfg.Serving.Models = cfg.Training.Models
	s := New(inference.New(&cfg.Serving))
	code, resp := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, result.Metrics.RunID, resp["run_id"])
	assert.InDelta(t, result.Metrics.ROCAUC, resp["roc_auc"].(float64), 1e-12)

	code, resp = do(t, s, http.MethodPost, "/predict", typicalBody)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["top_features"], 5)
}

func TestListenAndServe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	cfg := config.Default().Serving
	cfg.Addr = addr
	cfg.ShutdownTimeout = time.Second
	s := New(unavailableService(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, &cfg) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Post("http://"+addr+"/predict", "application/json", bytes.NewBufferString(typicalBody))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server didn't shut down")
	}
}
