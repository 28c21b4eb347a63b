package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_login_attempts_total",
		Help: "Login attempts by result (success, rejected, error)",
	}, []string{"result"})

	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_registrations_total",
		Help: "Registration attempts by result (created, conflict, error)",
	}, []string{"result"})

	rehashNeeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "identity_password_rehash_needed_total",
		Help: "Successful logins whose stored hash uses outdated parameters",
	})
)
