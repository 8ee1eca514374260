package items

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const countTimeout = 2 * time.Second

// newRegistrySizeGauge reports the number of stored items, read from the
// store at scrape time. A failed count is reported as -1.
func newRegistrySizeGauge(store Store, log *zap.Logger) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "items_registry_size",
			Help: "Number of items currently held by the registry",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
			defer cancel()

			n, err := store.Count(ctx)
			if err != nil {
				log.Warn("count items for metrics failed", zap.Error(err))
				return -1
			}
			return float64(n)
		},
	)
}
