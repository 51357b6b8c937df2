package http

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"sentilab/analyzer"
	"sentilab/dataset"
	"sentilab/db"
	"sentilab/ml"
)

type trainRequest struct {
	Filepath    string  `json:"filepath"`
	ModelType   string  `json:"model_type"`
	TextColumn  string  `json:"text_column"`
	LabelColumn string  `json:"label_column"`
	TestSize    float64 `json:"test_size"`
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	req := trainRequest{
		ModelType:   s.cfg.Model.DefaultType,
		TextColumn:  "text",
		LabelColumn: "sentiment",
		TestSize:    analyzer.DefaultTestSize,
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	path, ok := s.resolveDataset(req.Filepath)
	if !ok {
		respondError(w, http.StatusBadRequest, "File not found")
		return
	}

	result, err := s.analyzer.Train(r.Context(), analyzer.TrainRequest{
		Filepath:    path,
		ModelType:   req.ModelType,
		TextColumn:  req.TextColumn,
		LabelColumn: req.LabelColumn,
		TestSize:    req.TestSize,
	})
	if err != nil {
		if isClientError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.requestLog(r).Error("training failed", zap.String("filepath", path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Training failed: "+err.Error())
		return
	}

	report := result.Report
	metrics := map[string]map[string]float64{
		"precision": classMap(func(label int) float64 { return report.Class(label).Precision }),
		"recall":    classMap(func(label int) float64 { return report.Class(label).Recall }),
		"f1_score":  classMap(func(label int) float64 { return report.Class(label).F1Score }),
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"accuracy":         report.Accuracy,
		"metrics":          metrics,
		"confusion_matrix": report.ConfusionMatrix,
		"model_saved":      true,
		"model_type":       result.ModelType,
		"train_samples":    result.TrainSamples,
		"test_samples":     result.TestSamples,
		"duration_ms":      result.Duration.Milliseconds(),
		"cleaning":         result.Cleaning,
	})
}

func (s *Server) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	runs := []db.TrainingRun{}
	if s.history != nil {
		var err error
		runs, err = s.history.ListTrainingRuns(r.Context(), queryLimit(r, 20))
		if err != nil {
			s.requestLog(r).Error("list training runs failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"runs":    runs,
		"total":   len(runs),
	})
}

// resolveDataset 将请求中的路径解析到上传目录内的已有文件
func (s *Server) resolveDataset(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", false
	}
	root, err := filepath.Abs(s.cfg.Storage.UploadDir)
	if err != nil {
		return "", false
	}

	for _, candidate := range []string{p, filepath.Join(s.cfg.Storage.UploadDir, p)} {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if st, err := os.Stat(abs); err == nil && st.Mode().IsRegular() {
			return abs, true
		}
	}
	return "", false
}

func isClientError(err error) bool {
	for _, target := range []error{
		analyzer.ErrInvalidInput,
		analyzer.ErrLoadData,
		dataset.ErrColumnNotFound,
		dataset.ErrEmptyDataset,
		dataset.ErrUnsupported,
		ml.ErrUnsupportedModel,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
