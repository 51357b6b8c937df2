package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus指标集合，使用独立的Registry
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	predictionsTotal *prometheus.CounterVec
	cacheHits        prometheus.Counter
	trainingRuns     *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	modelAccuracy    prometheus.Gauge
	modelLoaded      prometheus.Gauge
}

// NewMetrics 创建并注册指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilab_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentilab_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilab_predictions_total",
			Help: "Predictions served by sentiment.",
		}, []string{"sentiment"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentilab_prediction_cache_hits_total",
			Help: "Predictions answered from the cache.",
		}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilab_training_runs_total",
			Help: "Training runs by model type and status.",
		}, []string{"model_type", "status"}),
		trainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentilab_training_duration_seconds",
			Help:    "Wall time of training runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"model_type"}),
		modelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentilab_model_accuracy",
			Help: "Test accuracy of the most recently trained model.",
		}),
		modelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentilab_model_loaded",
			Help: "1 when a model is loaded in memory.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.predictionsTotal,
		m.cacheHits,
		m.trainingRuns,
		m.trainingDuration,
		m.modelAccuracy,
		m.modelLoaded,
	)
	return m
}

// Handler 返回/metrics处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest 记录HTTP请求
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePrediction 记录一次预测
func (m *Metrics) ObservePrediction(sentiment string, cached bool) {
	m.predictionsTotal.WithLabelValues(sentiment).Inc()
	if cached {
		m.cacheHits.Inc()
	}
}

// ObserveTraining 记录一次训练
func (m *Metrics) ObserveTraining(modelType, status string, elapsed time.Duration, accuracy float64) {
	m.trainingRuns.WithLabelValues(modelType, status).Inc()
	m.trainingDuration.WithLabelValues(modelType).Observe(elapsed.Seconds())
	if status == "succeeded" {
		m.modelAccuracy.Set(accuracy)
	}
}

// SetModelLoaded 更新模型加载状态
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.modelLoaded.Set(1)
	} else {
		m.modelLoaded.Set(0)
	}
}
