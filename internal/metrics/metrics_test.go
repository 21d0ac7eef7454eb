package metrics

import (
	"testing"

	"assessment-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.AttemptStarted(domain.Grandtest, false)
	rec.AttemptStarted(domain.Grandtest, true)
	rec.AttemptFinalized(domain.Grandtest, true, false)
	rec.CertificateIssued()
	rec.CertificateVerified(false)

	if got := testutil.ToFloat64(rec.started.WithLabelValues("grandtest", "false")); got != 1 {
		t.Fatalf("expected one fresh start, got %v", got)
	}
	if got := testutil.ToFloat64(rec.certificates); got != 1 {
		t.Fatalf("expected one certificate, got %v", got)
	}
	if got := testutil.CollectAndCount(rec.verified); got != 1 {
		t.Fatalf("expected one verification series, got %d", got)
	}
}
