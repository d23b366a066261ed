// Package metrics holds the Prometheus counters for authentication events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess        = "success"
	OutcomeInvalid        = "invalid"
	OutcomeBadCredentials = "bad_credentials"
	OutcomeAlreadyActive  = "already_logged_in"
	OutcomeEmailTaken     = "email_taken"
	OutcomeThrottled      = "throttled"
	OutcomeError          = "error"
)

// Revocation reasons.
const (
	ReasonLogout  = "logout"
	ReasonForced  = "forced"
	ReasonExpired = "expired"
	ReasonDeleted = "deleted"
)

// Logins counts login attempts by outcome.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authkeeper_logins_total",
		Help: "Total number of login attempts",
	},
	[]string{"outcome"},
)

// Signups counts signup attempts by outcome.
var Signups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authkeeper_signups_total",
		Help: "Total number of signup attempts",
	},
	[]string{"outcome"},
)

// Revocations counts session tokens cleared, by reason.
var Revocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authkeeper_revocations_total",
		Help: "Total number of session tokens revoked",
	},
	[]string{"reason"},
)

// RegisterMetrics registers the counters with reg. Panics if registration
// fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(Signups)
	reg.MustRegister(Revocations)
}

// NewRegistry returns a registry with the auth counters plus Go runtime and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	RegisterMetrics(reg)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func RecordLogin(outcome string) {
	Logins.WithLabelValues(outcome).Inc()
}

func RecordSignup(outcome string) {
	Signups.WithLabelValues(outcome).Inc()
}

func RecordRevocation(reason string) {
	Revocations.WithLabelValues(reason).Inc()
}
