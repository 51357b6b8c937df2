package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"sentilab/analyzer"
	"sentilab/config"
	"sentilab/db"
	"sentilab/monitoring"
)

const reviewsCSV = `text,sentiment
"I love this product, it is great",positive
great quality and love the design,positive
"absolutely wonderful, love it",positive
"great service, wonderful staff",positive
"wonderful experience, great value",positive
"love love love, great purchase",positive
"terrible product, I hate it",negative
awful quality and terrible support,negative
"hate the design, awful experience",negative
"terrible service, awful staff",negative
"worst purchase, hate it",negative
awful awful terrible waste,negative
the package arrived on tuesday,neutral
it is a box with a cable,neutral
the product comes in blue,neutral
delivery took three days,neutral
the manual is twenty pages,neutral
box contains the device and a cable,neutral
`

type testEnv struct {
	cfg     *config.Config
	handler http.Handler
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.ModelPath = filepath.Join(dir, "models", "sentiment_model.json")
	cfg.Storage.MaxUploadMB = 1
	cfg.Model.Epochs = 200

	store, err := db.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	a, err := analyzer.New(analyzer.ConfigFrom(cfg), zap.NewNop(), analyzer.WithRunStore(store))
	require.NoError(t, err)

	srv := NewServer(cfg, Deps{
		Analyzer: a,
		History:  store,
		Metrics:  monitoring.NewMetrics(),
		Log:      zap.NewNop(),
	})
	return &testEnv{cfg: cfg, handler: srv.Handler(), dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) uploadAndTrain(t *testing.T, modelType string) map[string]interface{} {
	t.Helper()
	rec := e.upload(t, "reviews.csv", []byte(reviewsCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploaded := decodeBody(t, rec)

	rec = e.do(t, http.MethodPost, "/api/train", map[string]interface{}{
		"filepath":   uploaded["filepath"],
		"model_type": modelType,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, message, decodeBody(t, rec)["error"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "Sentiment Analysis API is running", body["message"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUploadCSV(t *testing.T) {
	env := newTestEnv(t)
	rec := env.upload(t, "../my reviews.csv", []byte(reviewsCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "my_reviews.csv", body["filename"])
	assert.Equal(t, 18.0, body["rows"])
	assert.Equal(t, []interface{}{"text", "sentiment"}, body["columns"])
	assert.FileExists(t, filepath.Join(env.cfg.Storage.UploadDir, "my_reviews.csv"))

	rec = env.do(t, http.MethodGet, "/api/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["total"])
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.upload(t, "payload.exe", []byte("MZ")), http.StatusBadRequest, "Invalid file type")

	big := bytes.Repeat([]byte("a"), (1<<20)+1024)
	assertError(t, env.upload(t, "big.csv", big), http.StatusRequestEntityTooLarge,
		"File too large. Maximum size is 1MB")

	rec := env.upload(t, "broken.json", []byte("not json at all"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decodeBody(t, rec)["error"].(string), "Invalid file format: "))
	assert.NoFileExists(t, filepath.Join(env.cfg.Storage.UploadDir, "broken.json"))

	// multipart body without a file part
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assertError(t, w, http.StatusBadRequest, "No file provided")

	// file part with an empty filename
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename=""`)
	_, err := mw.CreatePart(h)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assertError(t, w, http.StatusBadRequest, "No file selected")
}

func TestInvalidReuploadKeepsExistingDataset(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.upload(t, "reviews.csv", []byte(reviewsCSV)).Code)

	rec := env.upload(t, "reviews.csv", []byte("a,b\n1,2,3\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decodeBody(t, rec)["error"].(string), "Invalid file format: "))

	stored, err := os.ReadFile(filepath.Join(env.cfg.Storage.UploadDir, "reviews.csv"))
	require.NoError(t, err)
	assert.Equal(t, reviewsCSV, string(stored))

	entries, err := os.ReadDir(env.cfg.Storage.UploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging files must not be left behind")

	rec = env.do(t, http.MethodPost, "/api/train", map[string]interface{}{"filepath": "reviews.csv"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandlerErrorsCarryRequestID(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	// 上传目录被普通文件占用
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	require.NoError(t, os.WriteFile(cfg.Storage.UploadDir, nil, 0o644))
	cfg.Storage.ModelPath = filepath.Join(dir, "model.json")

	core, logs := observer.New(zap.InfoLevel)
	a, err := analyzer.New(analyzer.ConfigFrom(cfg), zap.NewNop())
	require.NoError(t, err)
	handler := NewServer(cfg, Deps{Analyzer: a, Log: zap.New(core)}).Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "reviews.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(reviewsCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	failures := logs.FilterMessage("create upload dir failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "req-42", failures[0].ContextMap()["request_id"])
}

func TestTrainRequiresExistingUpload(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.do(t, http.MethodPost, "/api/train", map[string]interface{}{}),
		http.StatusBadRequest, "File not found")
	assertError(t, env.do(t, http.MethodPost, "/api/train", map[string]interface{}{"filepath": "missing.csv"}),
		http.StatusBadRequest, "File not found")

	outside := filepath.Join(env.dir, "outside.csv")
	require.NoError(t, os.WriteFile(outside, []byte(reviewsCSV), 0o644))
	assertError(t, env.do(t, http.MethodPost, "/api/train", map[string]interface{}{"filepath": outside}),
		http.StatusBadRequest, "File not found")

	assertError(t, env.do(t, http.MethodPost, "/api/train", "{"), http.StatusBadRequest, "Invalid JSON body")
}

func TestTrainClientErrors(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.upload(t, "reviews.csv", []byte(reviewsCSV)).Code)

	rec := env.do(t, http.MethodPost, "/api/train", map[string]interface{}{
		"filepath":    "reviews.csv",
		"text_column": "review",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "column not found")

	rec = env.do(t, http.MethodPost, "/api/train", map[string]interface{}{
		"filepath":   "reviews.csv",
		"model_type": "svm",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/train", map[string]interface{}{
		"filepath":  "reviews.csv",
		"test_size": 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/train", map[string]interface{}{
		"filepath":  "reviews.csv",
		"test_size": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "test_size")
}

func TestPredictBeforeTraining(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.do(t, http.MethodPost, "/api/predict", map[string]string{"text": "hello"}),
		http.StatusBadRequest, "Model not trained yet")
	assertError(t, env.do(t, http.MethodPost, "/api/batch_predict", map[string]interface{}{"texts": []string{"a"}}),
		http.StatusBadRequest, "Model not trained yet")
	assertError(t, env.do(t, http.MethodPost, "/api/predict", map[string]string{"text": ""}),
		http.StatusBadRequest, "No text provided")
	assertError(t, env.do(t, http.MethodPost, "/api/predict", map[string]string{"text": "  "}),
		http.StatusBadRequest, "Model not trained yet")
	assertError(t, env.do(t, http.MethodPost, "/api/batch_predict", map[string]interface{}{"texts": []string{}}),
		http.StatusBadRequest, "No texts provided")
	assertError(t, env.do(t, http.MethodPost, "/api/predict", "not json"), http.StatusBadRequest, "Invalid JSON body")
}

func TestModelLifecycleWithoutArtifact(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/model_info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["model_exists"])
	assert.Equal(t, "No trained model found", body["message"])

	assertError(t, env.do(t, http.MethodPost, "/api/load_model", nil), http.StatusNotFound, "Model file not found")
}

func TestTrainPredictFlow(t *testing.T) {
	env := newTestEnv(t)
	trained := env.uploadAndTrain(t, "logistic")

	assert.Equal(t, true, trained["success"])
	assert.Equal(t, true, trained["model_saved"])
	assert.Equal(t, "logistic", trained["model_type"])
	assert.Equal(t, 14.0, trained["train_samples"])
	assert.Equal(t, 4.0, trained["test_samples"])

	metrics := trained["metrics"].(map[string]interface{})
	for _, key := range []string{"precision", "recall", "f1_score"} {
		perClass := metrics[key].(map[string]interface{})
		assert.Len(t, perClass, 3)
		assert.Contains(t, perClass, "negative")
		assert.Contains(t, perClass, "neutral")
		assert.Contains(t, perClass, "positive")
	}
	cm := trained["confusion_matrix"].([]interface{})
	require.Len(t, cm, 3)
	total := 0.0
	for _, row := range cm {
		for _, v := range row.([]interface{}) {
			total += v.(float64)
		}
	}
	assert.Equal(t, 4.0, total)

	rec := env.do(t, http.MethodPost, "/api/predict", map[string]string{"text": "great product, love it"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pred := decodeBody(t, rec)
	assert.Contains(t, []interface{}{"Negative", "Neutral", "Positive"}, pred["sentiment"])
	sum := 0.0
	for _, p := range pred["probabilities"].(map[string]interface{}) {
		sum += p.(float64)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	rec = env.do(t, http.MethodPost, "/api/predict", map[string]string{"text": "   "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "   ", decodeBody(t, rec)["text"])

	texts := []string{"awful", "love it", "the box", "terrible service"}
	rec = env.do(t, http.MethodPost, "/api/batch_predict", map[string]interface{}{"texts": texts})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := decodeBody(t, rec)
	assert.Equal(t, float64(len(texts)), batch["total"])
	preds := batch["predictions"].([]interface{})
	require.Len(t, preds, len(texts))
	for i, p := range preds {
		item := p.(map[string]interface{})
		assert.Equal(t, texts[i], item["text"])

		rec = env.do(t, http.MethodPost, "/api/predict", map[string]string{"text": texts[i]})
		require.Equal(t, http.StatusOK, rec.Code)
		single := decodeBody(t, rec)
		assert.Equal(t, single["sentiment"], item["sentiment"], texts[i])
		assert.Equal(t, single["probabilities"], item["probabilities"], texts[i])
	}

	rec = env.do(t, http.MethodGet, "/api/model_info", nil)
	info := decodeBody(t, rec)
	assert.Equal(t, true, info["model_exists"])
	assert.Equal(t, true, info["model_loaded"])
	assert.Equal(t, "logistic", info["model_type"])
	assert.Greater(t, info["file_size"].(float64), 0.0)
	assert.Greater(t, info["last_modified"].(float64), 0.0)

	rec = env.do(t, http.MethodPost, "/api/load_model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Model loaded successfully", decodeBody(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/api/training_history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody(t, rec)
	assert.Equal(t, 1.0, history["total"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/health", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sentilab_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}

func TestMetricsCollapseUnknownPaths(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/scan/a", "/scan/b", "/wp-login.php", "/.env"} {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
	}
	env.do(t, http.MethodGet, "/api/predict", nil)

	body := env.do(t, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `sentilab_http_requests_total{method="GET",route="unmatched",status="404"} 4`)
	assert.Contains(t, body, `sentilab_http_requests_total{method="GET",route="unmatched",status="405"} 1`)
	assert.NotContains(t, body, "/scan/a")
	assert.NotContains(t, body, "wp-login")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(RecoveryMiddleware(zap.NewNop()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertError(t, rec, http.StatusInternalServerError, "Internal server error")
}

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"reviews.csv":          "reviews.csv",
		"my data set.csv":      "my_data_set.csv",
		"../../etc/passwd.csv": "etc_passwd.csv",
		`C:\temp\résumé.txt`:   "C_temp_resume.txt",
		"日本語.json":             "json",
		"..hidden.csv":         "hidden.csv",
	}
	for in, want := range cases {
		assert.Equal(t, want, secureFilename(in), in)
	}
}

func TestSecureFilenameFallback(t *testing.T) {
	env := newTestEnv(t)
	rec := env.upload(t, "日本語.csv", []byte(reviewsCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	name := decodeBody(t, rec)["filename"].(string)
	assert.True(t, strings.HasPrefix(name, "upload_"))
	assert.True(t, strings.HasSuffix(name, ".csv"))
}
