// Package analyzer owns the sentiment model: it trains, evaluates, persists
// and serves predictions from a single lock-protected pipeline.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"sentilab/config"
	"sentilab/dataset"
	"sentilab/db"
	"sentilab/ml"
	"sentilab/monitoring"
	"sentilab/pipeline"
)

var (
	ErrModelNotTrained = errors.New("model not trained yet")
	ErrInvalidInput    = errors.New("invalid input")
	ErrLoadData        = errors.New("failed to load data")
)

type Config struct {
	ModelPath        string
	DefaultModelType string
	Vectorizer       ml.VectorizerConfig
	Hyperparams      ml.Hyperparams
	RandomSeed       int64
	CacheSize        int
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ModelPath:        cfg.Storage.ModelPath,
		DefaultModelType: cfg.Model.DefaultType,
		Vectorizer: ml.VectorizerConfig{
			MaxFeatures: cfg.Model.MaxFeatures,
			NGramMax:    cfg.Model.NGramMax,
			MinDF:       cfg.Model.MinDF,
		},
		Hyperparams: ml.Hyperparams{
			LearningRate: cfg.Model.LearnRate,
			Epochs:       cfg.Model.Epochs,
			L2:           cfg.Model.L2,
			Alpha:        cfg.Model.Alpha,
			MaxDepth:     cfg.Model.MaxDepth,
		},
		RandomSeed: cfg.Model.RandomSeed,
		CacheSize:  cfg.Model.CacheSize,
	}
}

type EventPublisher interface {
	Publish(eventType monitoring.EventType, data interface{})
}

type MetricsRecorder interface {
	ObservePrediction(sentiment string, cached bool)
	ObserveTraining(modelType, status string, elapsed time.Duration, accuracy float64)
	SetModelLoaded(loaded bool)
}

type RunStore interface {
	RecordTrainingRun(ctx context.Context, run *db.TrainingRun) error
}

type Option func(*Analyzer)

func WithEvents(p EventPublisher) Option {
	return func(a *Analyzer) { a.events = p }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(a *Analyzer) { a.metrics = m }
}

func WithRunStore(s RunStore) Option {
	return func(a *Analyzer) { a.runs = s }
}

// Analyzer serializes training runs on trainMu and guards the live pipeline
// with mu. A new pipeline is built without holding mu and swapped in at the
// end, so predictions keep using the previous model meanwhile.
type Analyzer struct {
	cfg     Config
	log     *zap.Logger
	events  EventPublisher
	metrics MetricsRecorder
	runs    RunStore

	trainMu sync.Mutex

	mu            sync.RWMutex
	pipeline      *ml.Pipeline
	loadedModTime time.Time
	cache         *lru.Cache[string, ml.Prediction]
}

func New(cfg Config, log *zap.Logger, opts ...Option) (*Analyzer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if cfg.DefaultModelType == "" {
		cfg.DefaultModelType = ml.ModelLogistic
	}
	if _, err := ml.CanonicalModelType(cfg.DefaultModelType); err != nil {
		return nil, err
	}

	a := &Analyzer{cfg: cfg, log: log.Named("analyzer")}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, ml.Prediction](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		a.cache = cache
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Analyzer) ModelPath() string {
	return a.cfg.ModelPath
}

func (a *Analyzer) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipeline != nil
}

// maxTextRunes caps the length of a training text; longer ones are truncated.
const maxTextRunes = 10000

// DefaultTestSize is the held-out fraction used when callers have no preference.
const DefaultTestSize = 0.2

// LoadData reads a dataset and cleans its rows: rows without text or label
// and exact duplicates are dropped.
func (a *Analyzer) LoadData(path, textColumn, labelColumn string) (*ml.LabeledData, error) {
	data, _, err := a.loadData(path, textColumn, labelColumn)
	return data, err
}

func (a *Analyzer) loadData(path, textColumn, labelColumn string) (*ml.LabeledData, pipeline.CleaningStats, error) {
	var stats pipeline.CleaningStats
	ds, err := dataset.Load(path)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrLoadData, err)
	}
	texts, err := ds.Column(textColumn)
	if err != nil {
		return nil, stats, err
	}
	rawLabels, err := ds.Column(labelColumn)
	if err != nil {
		return nil, stats, err
	}

	rows := make([]*pipeline.Row, len(texts))
	for i := range texts {
		// line 1 is the header
		rows[i] = &pipeline.Row{Line: i + 2, Text: texts[i], Label: rawLabels[i]}
	}
	cleaner := pipeline.NewDataCleaner(maxTextRunes)
	cleaned, issues := cleaner.Clean(rows)
	stats = cleaner.GetStats()
	if len(issues) > 0 {
		a.log.Info("dataset rows dropped",
			zap.String("dataset", path),
			zap.Int("rejected", stats.Rejected),
			zap.Any("issues", stats.Issues))
		for i, issue := range issues {
			if i == 10 {
				break
			}
			a.log.Debug("dataset row rejected", zap.String("rule", issue.Rule), zap.String("message", issue.Message))
		}
	}
	if len(cleaned) == 0 {
		return nil, stats, fmt.Errorf("%w: no rows with both %q and %q", dataset.ErrEmptyDataset, textColumn, labelColumn)
	}

	data := &ml.LabeledData{Texts: make([]string, len(cleaned))}
	keptLabels := make([]string, len(cleaned))
	for i, row := range cleaned {
		data.Texts[i] = row.Text
		keptLabels[i] = row.Label
	}
	data.Labels, err = ml.ParseLabels(keptLabels)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return data, stats, nil
}

func (a *Analyzer) PrepareData(data *ml.LabeledData, testSize float64) (train, test *ml.LabeledData, err error) {
	train, test, err = ml.TrainTestSplit(data, testSize, a.cfg.RandomSeed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return train, test, nil
}

func (a *Analyzer) TrainModel(ctx context.Context, train *ml.LabeledData, modelType string) (*ml.Pipeline, error) {
	return ml.TrainPipeline(ctx, modelType, a.cfg.Vectorizer, a.cfg.Hyperparams, train)
}

func (a *Analyzer) Evaluate(p *ml.Pipeline, test *ml.LabeledData) (ml.Report, error) {
	return p.Evaluate(test)
}

type TrainRequest struct {
	Filepath    string
	ModelType   string
	TextColumn  string
	LabelColumn string
	TestSize    float64
}

type TrainResult struct {
	ModelType    string
	ModelPath    string
	Report       ml.Report
	TrainSamples int
	TestSamples  int
	Duration     time.Duration
	TrainedAt    time.Time
	Cleaning     pipeline.CleaningStats
}

// Train runs load, prepare, train, evaluate and persist, then swaps the
// new model in. Every run is recorded, failed ones included.
func (a *Analyzer) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	if req.ModelType == "" {
		req.ModelType = a.cfg.DefaultModelType
	}
	if req.TextColumn == "" {
		req.TextColumn = "text"
	}
	if req.LabelColumn == "" {
		req.LabelColumn = "sentiment"
	}
	modelType, err := ml.CanonicalModelType(req.ModelType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	a.trainMu.Lock()
	defer a.trainMu.Unlock()

	start := time.Now()
	log := a.log.With(zap.String("dataset", req.Filepath), zap.String("model_type", modelType))
	log.Info("training started", zap.Float64("test_size", req.TestSize))
	a.publish(monitoring.TrainingStarted, map[string]interface{}{
		"filepath":   req.Filepath,
		"model_type": modelType,
	})

	result, err := a.train(ctx, req, modelType)
	elapsed := time.Since(start)

	run := &db.TrainingRun{
		DatasetPath: req.Filepath,
		ModelType:   modelType,
		DurationMs:  elapsed.Milliseconds(),
	}
	if err != nil {
		run.Status = db.StatusFailed
		run.Error = err.Error()
		a.recordRun(ctx, run)
		if a.metrics != nil {
			a.metrics.ObserveTraining(modelType, db.StatusFailed, elapsed, 0)
		}
		a.publish(monitoring.TrainingFailed, map[string]interface{}{
			"filepath":   req.Filepath,
			"model_type": modelType,
			"error":      err.Error(),
		})
		log.Warn("training failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}

	result.Duration = elapsed
	run.Status = db.StatusSucceeded
	run.Accuracy = result.Report.Accuracy
	run.Precision = result.Report.MacroAvg.Precision
	run.Recall = result.Report.MacroAvg.Recall
	run.F1Score = result.Report.MacroAvg.F1Score
	run.TrainSamples = result.TrainSamples
	run.TestSamples = result.TestSamples
	run.TrainedAt = result.TrainedAt
	a.recordRun(ctx, run)
	if a.metrics != nil {
		a.metrics.ObserveTraining(modelType, db.StatusSucceeded, elapsed, result.Report.Accuracy)
	}
	a.publish(monitoring.TrainingCompleted, map[string]interface{}{
		"filepath":      req.Filepath,
		"model_type":    modelType,
		"accuracy":      result.Report.Accuracy,
		"train_samples": result.TrainSamples,
		"test_samples":  result.TestSamples,
	})
	log.Info("training completed",
		zap.Float64("accuracy", result.Report.Accuracy),
		zap.Int("train_samples", result.TrainSamples),
		zap.Int("test_samples", result.TestSamples),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (a *Analyzer) train(ctx context.Context, req TrainRequest, modelType string) (*TrainResult, error) {
	data, cleaning, err := a.loadData(req.Filepath, req.TextColumn, req.LabelColumn)
	if err != nil {
		return nil, err
	}
	train, test, err := a.PrepareData(data, req.TestSize)
	if err != nil {
		return nil, err
	}
	p, err := a.TrainModel(ctx, train, modelType)
	if err != nil {
		return nil, err
	}
	report, err := a.Evaluate(p, test)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := ml.Save(a.cfg.ModelPath, p); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	a.install(p, modTime(a.cfg.ModelPath))

	return &TrainResult{
		ModelType:    p.ModelType,
		ModelPath:    a.cfg.ModelPath,
		Report:       report,
		TrainSamples: train.Len(),
		TestSamples:  test.Len(),
		TrainedAt:    p.TrainedAt,
		Cleaning:     cleaning,
	}, nil
}

func (a *Analyzer) install(p *ml.Pipeline, artifactModTime time.Time) {
	a.mu.Lock()
	a.pipeline = p
	a.loadedModTime = artifactModTime
	if a.cache != nil {
		a.cache.Purge()
	}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.SetModelLoaded(true)
	}
}

// SaveModel persists the in-memory model to path.
func (a *Analyzer) SaveModel(path string) error {
	a.mu.RLock()
	p := a.pipeline
	a.mu.RUnlock()
	if p == nil {
		return ErrModelNotTrained
	}
	if err := ml.Save(path, p); err != nil {
		return err
	}
	if path == a.cfg.ModelPath {
		a.mu.Lock()
		if a.pipeline == p {
			a.loadedModTime = modTime(path)
		}
		a.mu.Unlock()
	}
	return nil
}

// LoadModel replaces the in-memory model with the artifact at path.
// A missing file yields an error matching os.ErrNotExist.
func (a *Analyzer) LoadModel(path string) error {
	p, err := ml.Load(path)
	if err != nil {
		return err
	}
	a.install(p, modTime(path))
	a.log.Info("model loaded", zap.String("path", path), zap.String("model_type", p.ModelType))
	a.publish(monitoring.ModelLoaded, map[string]interface{}{
		"model_path": path,
		"model_type": p.ModelType,
		"trained_at": p.TrainedAt,
	})
	return nil
}

// EnsureLoaded loads the persisted model when none is in memory.
func (a *Analyzer) EnsureLoaded() error {
	if a.Loaded() {
		return nil
	}
	err := a.LoadModel(a.cfg.ModelPath)
	if errors.Is(err, os.ErrNotExist) {
		return ErrModelNotTrained
	}
	return err
}

// ReloadIfChanged reloads the artifact when its mtime differs from the one
// the in-memory model was loaded or saved with.
func (a *Analyzer) ReloadIfChanged() (bool, error) {
	mt := modTime(a.cfg.ModelPath)
	if mt.IsZero() {
		return false, nil
	}
	a.mu.RLock()
	same := a.pipeline != nil && mt.Equal(a.loadedModTime)
	a.mu.RUnlock()
	if same {
		return false, nil
	}
	if err := a.LoadModel(a.cfg.ModelPath); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Analyzer) Predict(text string) (ml.Prediction, error) {
	if err := a.EnsureLoaded(); err != nil {
		return ml.Prediction{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.predictLocked(text)
}

// PredictBatch answers every text from the same model, in input order.
func (a *Analyzer) PredictBatch(texts []string) ([]ml.Prediction, error) {
	if err := a.EnsureLoaded(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ml.Prediction, len(texts))
	for i, text := range texts {
		pred, err := a.predictLocked(text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

// predictLocked requires mu held for reading. Cache writes happen under the
// same lock so a concurrent swap cannot leave stale entries behind.
func (a *Analyzer) predictLocked(text string) (ml.Prediction, error) {
	if a.pipeline == nil {
		return ml.Prediction{}, ErrModelNotTrained
	}
	if a.cache != nil {
		if pred, ok := a.cache.Get(text); ok {
			if a.metrics != nil {
				a.metrics.ObservePrediction(pred.Sentiment, true)
			}
			return clonePrediction(pred), nil
		}
	}
	pred, err := a.pipeline.Predict(text)
	if err != nil {
		return ml.Prediction{}, err
	}
	if a.cache != nil {
		a.cache.Add(text, clonePrediction(pred))
	}
	if a.metrics != nil {
		a.metrics.ObservePrediction(pred.Sentiment, false)
	}
	return pred, nil
}

type ModelInfo struct {
	Exists          bool
	Path            string
	Size            int64
	ModTime         time.Time
	Loaded          bool
	ModelType       string
	TrainedAt       time.Time
	VocabularySize  int
	TrainingSamples int
}

func (a *Analyzer) Info() (ModelInfo, error) {
	info := ModelInfo{Path: a.cfg.ModelPath}
	st, err := os.Stat(a.cfg.ModelPath)
	switch {
	case err == nil:
		info.Exists = true
		info.Size = st.Size()
		info.ModTime = st.ModTime()
	case !errors.Is(err, os.ErrNotExist):
		return info, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.pipeline != nil {
		info.Loaded = true
		info.ModelType = a.pipeline.ModelType
		info.TrainedAt = a.pipeline.TrainedAt
		info.VocabularySize = a.pipeline.Vectorizer.Dim()
		info.TrainingSamples = a.pipeline.Samples
	}
	return info, nil
}

func (a *Analyzer) publish(eventType monitoring.EventType, data interface{}) {
	if a.events != nil {
		a.events.Publish(eventType, data)
	}
}

func (a *Analyzer) recordRun(ctx context.Context, run *db.TrainingRun) {
	if a.runs == nil {
		return
	}
	// a cancelled request must not drop the history entry
	if err := a.runs.RecordTrainingRun(context.WithoutCancel(ctx), run); err != nil {
		a.log.Warn("failed to record training run", zap.Error(err))
	}
}

func clonePrediction(p ml.Prediction) ml.Prediction {
	p.Probabilities = append([]float64(nil), p.Probabilities...)
	return p
}

func modTime(path string) time.Time {
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return st.ModTime()
}
