package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesSolveMetrics(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	Solves.WithLabelValues("bnb", "optimal").Inc()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("metrics: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `carevrp_solves_total{backend="bnb",status="optimal"}`) {
		t.Fatalf("solve counter missing from exposition")
	}
}
