package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ingestTotal — результаты загрузки: created, duplicate или код ошибки.
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_ingest_total",
		Help: "Количество обработанных запросов на добавление фотографии",
	}, []string{"result"})

	ingestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_ingest_duration_seconds",
		Help:    "Длительность добавления фотографии в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// photosTotal — количество записей в таблице (обновляется при чтении и изменении).
	photosTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_photos_total",
		Help: "Количество фотографий в галерее",
	})
)
