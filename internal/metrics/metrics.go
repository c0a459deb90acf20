package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FranksOps/papyrus/internal/manifest"
)

var (
	ArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papyrus_articles_total",
			Help: "Total number of article attempts by site and outcome",
		},
		[]string{"site", "outcome"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papyrus_downloads_total",
			Help: "Total number of saved documents by acquisition strategy",
		},
		[]string{"strategy"},
	)

	ArticleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "papyrus_article_duration_seconds",
			Help:    "End-to-end duration of one article attempt in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"site"},
	)

	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "papyrus_download_bytes_total",
			Help: "Total bytes of saved documents",
		},
	)
)

// RecordArticle updates the metrics from one manifest record.
func RecordArticle(rec *manifest.Record, bytes int64) {
	if rec == nil {
		return
	}

	ArticlesTotal.WithLabelValues(rec.Site, rec.Outcome).Inc()
	ArticleDuration.WithLabelValues(rec.Site).Observe(rec.Duration.Seconds())
	if rec.Outcome == manifest.OutcomeSaved {
		DownloadsTotal.WithLabelValues(rec.FetchStrategy).Inc()
		DownloadBytesTotal.Add(float64(bytes))
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
