package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/v1/projects/01hx":                     "/v1/projects/:id",
		"/v1/projects/01hx/transition":          "/v1/projects/:id/transition",
		"/v1/projects":                          "/v1/projects",
		"/v1/applications/abc/documents?x=1":    "/v1/applications/:id/documents",
		"/v1/organizations/o1/authorizations/a": "/v1/organizations/:id/authorizations/:id",
		"/v1/lifecycles/project":                "/v1/lifecycles/project",
		"/v1/documents/d1/status":               "/v1/documents/:id/status",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, CanonicalPath(input), "CanonicalPath(%q)", input)
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/projects/:id/transition", "202"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/projects/p-1/transition", nil))
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/projects/p-2/transition", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/projects/:id/transition", "202"))
	assert.Equal(t, before+2, after)
}
