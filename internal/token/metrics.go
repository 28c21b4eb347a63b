package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_tokens_issued_total",
		Help: "Total number of signed tokens issued",
	}, []string{"type"})

	verifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_token_verify_failures_total",
		Help: "Total number of rejected tokens by reason",
	}, []string{"reason"})
)
