package httpapi

import (
	"context"
	"net/http"
	"time"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/controlplane"
	"grantflow.org/internal/events"
	"grantflow.org/internal/obs"
)

const serviceName = "grantflow-api"

// Pinger is anything whose liveness can be probed, typically the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks dependencies before the service reports ready.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Options tunes the HTTP layer. Zero values select the defaults.
type Options struct {
	Version       string
	Ready         ReadyProbe
	Broker        *events.Broker
	Tokens        *auth.TokenIssuer
	DevTokens     bool
	TokenTTL      time.Duration
	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

// API is the HTTP surface of the control plane.
type API struct {
	mux        *http.ServeMux
	svc        *controlplane.Service
	broker     *events.Broker
	tokens     *auth.TokenIssuer
	readyProbe ReadyProbe
	version    string
	devTokens  bool
	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec int
	maxBody    int64
	now        func() time.Time
}

func New(svc *controlplane.Service, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		broker:     opts.Broker,
		tokens:     opts.Tokens,
		readyProbe: opts.Ready,
		version:    opts.Version,
		devTokens:  opts.DevTokens,
		tokenTTL:   opts.TokenTTL,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSecond,
		maxBody:    opts.MaxBodyBytes,
		now:        time.Now,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/permissions/resolve", a.handleResolvePermission)
	a.mux.HandleFunc("/v1/lifecycles/", a.handleLifecycle)

	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)
	a.mux.HandleFunc("/v1/projects", a.handleProjects)
	a.mux.HandleFunc("/v1/projects/", a.handleDossierScoped)
	a.mux.HandleFunc("/v1/applications", a.handleApplications)
	a.mux.HandleFunc("/v1/applications/", a.handleDossierScoped)
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentScoped)
	a.mux.HandleFunc("/v1/events", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
