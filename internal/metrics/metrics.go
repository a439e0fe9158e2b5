package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "xforth_request_attempts_total", Help: "Funding request attempts by outcome"},
		[]string{"outcome"},
	)
	ConfirmationPolls = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "xforth_confirmation_polls_total", Help: "Signature status queries issued"},
	)
	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "xforth_confirmation_outcomes_total", Help: "Terminal confirmation outcomes"},
		[]string{"state"},
	)
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "xforth_transactions_submitted_total", Help: "Transactions sent to the network"},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(RequestAttempts, ConfirmationPolls, Outcomes, Submissions)
}

// Serve exposes /metrics on addr. An empty addr disables the endpoint and returns nil.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
