package price

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookscan_price_lookups_total",
		Help: "Storefront price lookups by result",
	}, []string{"result"})

	cacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookscan_price_cache_total",
		Help: "Price cache lookups by result",
	}, []string{"result"})
)
