package obvy

import (
	"net/http"
	"strconv"

	"github.com/cgxeiji/pulseox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats are the Prometheus metrics of a running device. Each Stats owns its
// registry so tests can create as many as they need.
type Stats struct {
	Registry *prometheus.Registry

	BPM        prometheus.Gauge
	SpO2       prometheus.Gauge
	RedCurrent prometheus.Gauge
	IRDC       prometheus.Gauge
	RedDC      prometheus.Gauge

	Beats    prometheus.Counter
	Samples  prometheus.Counter
	Requests *prometheus.CounterVec
}

func NewStats() *Stats {
	s := &Stats{
		Registry: prometheus.NewRegistry(),
		BPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_heart_bpm",
			Help: "Averaged heart rate in beats per minute.",
		}),
		SpO2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_spo2_percent",
			Help: "Estimated blood oxygen saturation.",
		}),
		RedCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_red_current_milliamps",
			Help: "Current driving the red LED.",
		}),
		IRDC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_ir_dc",
			Help: "DC level of the IR channel.",
		}),
		RedDC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_red_dc",
			Help: "DC level of the red channel.",
		}),
		Beats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseox_beats_total",
			Help: "Detected heart beats.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseox_samples_total",
			Help: "Processed sensor samples.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseox_http_requests_total",
			Help: "HTTP API requests by status code and method.",
		}, []string{"code", "method"}),
	}

	s.Registry.MustRegister(
		s.BPM, s.SpO2, s.RedCurrent, s.IRDC, s.RedDC,
		s.Beats, s.Samples, s.Requests,
	)

	return s
}

// Record updates the metrics with the output of one sample.
func (s *Stats) Record(out pulseox.Output) {
	s.Samples.Inc()
	if out.PulseDetected {
		s.Beats.Inc()
	}
	s.BPM.Set(out.HeartBPM)
	s.SpO2.Set(out.SpO2)
	s.RedCurrent.Set(out.RedCurrent.MilliAmps())
	s.IRDC.Set(out.IRDC)
	s.RedDC.Set(out.RedDC)
}

// RecWWW counts one HTTP request.
func (s *Stats) RecWWW(code, method string) {
	s.Requests.WithLabelValues(code, method).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// RespWriter records the status code written by a handler.
type RespWriter struct {
	http.ResponseWriter
	Status int
}

func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *RespWriter) Write(b []byte) (int, error) {
	return w.ResponseWriter.Write(b)
}

// Middleware counts every request served by next.
func (s *Stats) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         http.StatusOK,
		}
		next.ServeHTTP(wrapped, r)

		s.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
	})
}
