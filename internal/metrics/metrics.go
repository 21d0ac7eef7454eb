package metrics

import (
	"strconv"

	"assessment-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exports engine events as Prometheus counters.
type Recorder struct {
	started      *prometheus.CounterVec
	finalized    *prometheus.CounterVec
	abandoned    *prometheus.CounterVec
	certificates prometheus.Counter
	verified     *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_attempts_started_total",
			Help: "Attempts started or resumed, by test kind.",
		}, []string{"kind", "resumed"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_attempts_finalized_total",
			Help: "Attempts scored, by test kind and outcome.",
		}, []string{"kind", "passed", "auto"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_attempts_abandoned_total",
			Help: "Attempts abandoned, by test kind.",
		}, []string{"kind"}),
		certificates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessment_certificates_issued_total",
			Help: "Certificates issued.",
		}),
		verified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_certificate_verifications_total",
			Help: "Certificate verification lookups, by result.",
		}, []string{"valid"}),
	}
	reg.MustRegister(r.started, r.finalized, r.abandoned, r.certificates, r.verified)
	return r
}

func (r *Recorder) AttemptStarted(kind domain.TestKind, resumed bool) {
	r.started.WithLabelValues(string(kind), strconv.FormatBool(resumed)).Inc()
}

func (r *Recorder) AttemptFinalized(kind domain.TestKind, passed, auto bool) {
	r.finalized.WithLabelValues(string(kind), strconv.FormatBool(passed), strconv.FormatBool(auto)).Inc()
}

func (r *Recorder) AttemptAbandoned(kind domain.TestKind) {
	r.abandoned.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) CertificateIssued() {
	r.certificates.Inc()
}

func (r *Recorder) CertificateVerified(valid bool) {
	r.verified.WithLabelValues(strconv.FormatBool(valid)).Inc()
}
