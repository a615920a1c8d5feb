package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRegistered(t *testing.T) {
	PayloadsTotal.WithLabelValues("refresh", "applied").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "dashboard_payloads_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("dashboard_payloads_total metric not found")
	}

	if got := testutil.ToFloat64(PayloadsTotal.WithLabelValues("refresh", "applied")); got < 1 {
		t.Errorf("Expected counter >= 1, got %f", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	RequestsIssued.WithLabelValues("analyze").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dashboard_requests_issued_total") {
		t.Error("Expected issued counter in exposition")
	}
}
