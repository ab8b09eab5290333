package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "pawwatch_test_total 3") {
		t.Errorf("body missing counter:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET / status = %d, want 404", resp.StatusCode)
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.2.3", "abc", "today")
	if got := testutil.ToFloat64(BuildInfo.WithLabelValues("1.2.3", "abc", "today")); got != 1 {
		t.Errorf("build_info = %v, want 1", got)
	}
}
