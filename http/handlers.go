package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentilab/analyzer"
	"sentilab/ml"
)

type predictRequest struct {
	Text string `json:"text"`
}

type batchPredictRequest struct {
	Texts []string `json:"texts"`
}

type predictionResult struct {
	Text          string             `json:"text"`
	Sentiment     string             `json:"sentiment"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Sentiment Analysis API is running",
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "No text provided")
		return
	}

	pred, err := s.analyzer.Predict(req.Text)
	if err != nil {
		s.respondPredictError(w, r, err)
		return
	}

	result := toPredictionResult(req.Text, pred)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"text":          result.Text,
		"sentiment":     result.Sentiment,
		"confidence":    result.Confidence,
		"probabilities": result.Probabilities,
	})
}

func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	var req batchPredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Texts) == 0 {
		respondError(w, http.StatusBadRequest, "No texts provided")
		return
	}

	preds, err := s.analyzer.PredictBatch(req.Texts)
	if err != nil {
		s.respondPredictError(w, r, err)
		return
	}

	results := make([]predictionResult, len(preds))
	for i, pred := range preds {
		results[i] = toPredictionResult(req.Texts[i], pred)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"predictions": results,
		"total":       len(results),
	})
}

// requestLog 带请求ID的日志器
func (s *Server) requestLog(r *http.Request) *zap.Logger {
	return s.log.With(zap.String("request_id", GetRequestID(r.Context())))
}

func (s *Server) respondPredictError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, analyzer.ErrModelNotTrained) {
		respondError(w, http.StatusBadRequest, "Model not trained yet")
		return
	}
	s.requestLog(r).Error("prediction failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "Prediction failed: "+err.Error())
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.analyzer.Info()
	if err != nil {
		s.requestLog(r).Error("model info failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.Exists {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"model_exists": false,
			"message":      "No trained model found",
		})
		return
	}

	resp := map[string]interface{}{
		"model_exists":  true,
		"model_path":    info.Path,
		"file_size":     info.Size,
		"last_modified": float64(info.ModTime.UnixNano()) / float64(time.Second),
		"model_loaded":  info.Loaded,
	}
	if info.Loaded {
		resp["model_type"] = info.ModelType
		resp["trained_at"] = info.TrainedAt.Format(time.RFC3339)
		resp["vocabulary_size"] = info.VocabularySize
		resp["training_samples"] = info.TrainingSamples
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	if err := s.analyzer.LoadModel(s.analyzer.ModelPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "Model file not found")
			return
		}
		s.requestLog(r).Error("load model failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load model: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Model loaded successfully",
	})
}

func toPredictionResult(text string, pred ml.Prediction) predictionResult {
	return predictionResult{
		Text:          text,
		Sentiment:     pred.Sentiment,
		Confidence:    pred.Confidence,
		Probabilities: classMap(func(label int) float64 { return pred.Probability(label) }),
	}
}

// classMap 按小写类别名组织各类别的值
func classMap(value func(label int) float64) map[string]float64 {
	out := make(map[string]float64, ml.NumClasses)
	for label, name := range ml.ClassNames() {
		out[strings.ToLower(name)] = value(label)
	}
	return out
}

// decodeJSON 解析请求体，失败时写入400
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
