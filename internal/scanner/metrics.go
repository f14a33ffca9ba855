package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики сканирования источников.
var (
	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "da_scanner_files_processed_total",
		Help: "Количество обработанных файлов по источникам",
	}, []string{"source"})

	filesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "da_scanner_files_skipped_total",
		Help: "Количество пропущенных файлов (недоступны или исчезли во время скана)",
	}, []string{"source"})

	filesArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "da_scanner_files_archived_total",
		Help: "Количество файлов, переданных в архив по результатам скана",
	})

	scanErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "da_scanner_errors_total",
		Help: "Количество ошибок обработки отдельных файлов",
	}, []string{"source"})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "da_scanner_pass_duration_seconds",
		Help:    "Длительность полного прохода сканирования",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"source"})
)
