package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookscan_scanner_sessions_active",
			Help: "Number of live scan sessions",
		},
	)

	acquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscan_scanner_acquisitions_total",
			Help: "Camera acquisition attempts by outcome",
		},
		[]string{"outcome"}, // stream, engine, failed, stopped
	)

	decodeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscan_scanner_decode_events_total",
			Help: "Live decode events by outcome",
		},
		[]string{"outcome"}, // isbn, ignored, no_symbol, error
	)

	imageScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscan_scanner_image_scans_total",
			Help: "Still-image scans by result",
		},
		[]string{"result"},
	)
)
