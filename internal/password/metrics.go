package password

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// hashDuration tracks time spent inside the hashing pool, excluding the wait
// for a free slot.
var hashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "identity_password_hash_duration_seconds",
	Help:    "Histogram of password hash and verify latency in seconds",
	Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
}, []string{"operation"})
