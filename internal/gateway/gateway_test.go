package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chaeminyu/monolithic-petclinic/internal/backend"
	"github.com/chaeminyu/monolithic-petclinic/internal/circuitbreaker"
	"github.com/chaeminyu/monolithic-petclinic/internal/routing"
	"github.com/chaeminyu/monolithic-petclinic/internal/toggle"
)

// testHarness wires a full gateway in front of two httptest backends.
type testHarness struct {
	handler  http.Handler
	toggles  *toggle.Store
	breakers *circuitbreaker.Registry
	current  *httptest.Server
	legacy   *httptest.Server
}

func echoBackend(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(name + ":" + r.URL.Path))
	}))
}

func failingBackend() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
}

func newHarness(t *testing.T, current, legacy *httptest.Server, defaults map[string]bool) *testHarness {
	t.Helper()

	toggles := toggle.NewStore(defaults)
	breakers := circuitbreaker.NewRegistry(
		circuitbreaker.DefaultConfig().WithWindowSize(2).WithWaitDuration(time.Minute),
		zap.NewNop(),
	)

	resolver := routing.NewResolver(
		&routing.Policy{PathPrefix: "/owners", Domain: routing.DomainOwnerLike, ToggleName: "owner-service"},
		&routing.Policy{PathPrefix: "/pets", Domain: routing.DomainFixedLegacy},
		&routing.Policy{PathPrefix: "/vets", Domain: routing.DomainFixedLegacy},
		&routing.Policy{PathPrefix: "/visits", Domain: routing.DomainFixedLegacy},
		&routing.Policy{PathPrefix: "/", Domain: routing.DomainFixedLegacy},
	)

	router := routing.NewFallbackRouter(
		toggles,
		breakers,
		backend.NewClient("current-service", current.URL),
		backend.NewClient("legacy-service", legacy.URL),
	)

	gw := New(resolver, router, toggles, breakers)
	server := NewServer(DefaultServerConfig(), gw, zap.NewNop())

	return &testHarness{
		handler:  server.Handler(),
		toggles:  toggles,
		breakers: breakers,
		current:  current,
		legacy:   legacy,
	}
}

func (h *testHarness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestGateway_OwnerRouteDelegatesWhenToggleOn(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	rec := h.do(http.MethodGet, "/owners/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "current:/owners/5", rec.Body.String())
	assert.Equal(t, "current-service", rec.Header().Get("X-Served-By"))
}

func TestGateway_OwnerRouteUsesLegacyWhenToggleOff(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": false})

	rec := h.do(http.MethodGet, "/owners/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "legacy:/owners/5", rec.Body.String())
	assert.Equal(t, "legacy-service", rec.Header().Get("X-Served-By"))
}

func TestGateway_FixedRoutesAlwaysLegacy(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	for _, path := range []string{"/pets/3", "/vets", "/visits/1", "/anything-else"} {
		rec := h.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "legacy:"+path, rec.Body.String(), path)
	}
}

func TestGateway_FallbackOnCurrentFailure(t *testing.T) {
	current := failingBackend()
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	rec := h.do(http.MethodGet, "/owners/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "legacy:/owners/5", rec.Body.String())
}

func TestGateway_AggregatedFailureIsBadGateway(t *testing.T) {
	current := failingBackend()
	defer current.Close()
	legacy := failingBackend()
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	rec := h.do(http.MethodGet, "/owners/5", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "both failed")
}

func TestGateway_LegacyFailureOnFixedRouteIsBadGateway(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := failingBackend()
	defer legacy.Close()

	h := newHarness(t, current, legacy, nil)

	rec := h.do(http.MethodGet, "/vets", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGateway_HealthReflectsToggle(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	rec := h.do(http.MethodGet, "/admin/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "UP", health.GatewayStatus)
	assert.Equal(t, "ACTIVE", health.CurrentServiceStatus)
	assert.Equal(t, "ACTIVE", health.LegacyStatus)

	h.toggles.Set("owner-service", false)

	rec = h.do(http.MethodGet, "/admin/health", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "INACTIVE", health.CurrentServiceStatus)
	assert.Equal(t, "ACTIVE", health.LegacyStatus)
}

func TestGateway_ArchitectureReflectsToggle(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": false})

	rec := h.do(http.MethodGet, "/admin/architecture", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var arch ArchitectureStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arch))
	assert.Equal(t, "Hybrid", arch.Type)
	assert.Equal(t, "legacy", arch.CurrentDomainMode)
	assert.Equal(t, "legacy", arch.FixedDomainsMode)

	h.toggles.Set("owner-service", true)

	rec = h.do(http.MethodGet, "/admin/architecture", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arch))
	assert.Equal(t, "delegated", arch.CurrentDomainMode)
}

func TestGateway_ToggleAdminEndpoint(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": false})

	// Flip the toggle through the admin surface.
	rec := h.do(http.MethodPut, "/admin/toggles/owner-service", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The flip is visible to the very next request.
	rec = h.do(http.MethodGet, "/owners/5", "")
	assert.Equal(t, "current:/owners/5", rec.Body.String())

	rec = h.do(http.MethodGet, "/admin/toggles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Toggles map[string]bool `json:"toggles"`
		Version uint64          `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.True(t, listing.Toggles["owner-service"])
	assert.Greater(t, listing.Version, uint64(0))
}

func TestGateway_ToggleAdminRejectsBadBody(t *testing.T) {
	current := echoBackend("current")
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, nil)

	rec := h.do(http.MethodPut, "/admin/toggles/owner-service", `{"on": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateway_BreakerStatsAndReset(t *testing.T) {
	current := failingBackend()
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	// Two failures fill the size-2 window and open the breaker.
	h.do(http.MethodGet, "/owners/1", "")
	h.do(http.MethodGet, "/owners/2", "")

	rec := h.do(http.MethodGet, "/admin/breakers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open"`)

	rec = h.do(http.MethodPost, "/admin/breakers/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, circuitbreaker.StateClosed, h.breakers.Get("current-service").State())
}

func TestGateway_OpenBreakerServesLegacyWithoutCurrent(t *testing.T) {
	currentCalls := 0
	current := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		currentCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	h.do(http.MethodGet, "/owners/1", "")
	h.do(http.MethodGet, "/owners/2", "")
	require.Equal(t, circuitbreaker.StateOpen, h.breakers.Get("current-service").State())

	before := currentCalls
	rec := h.do(http.MethodGet, "/owners/3", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "legacy:/owners/3", rec.Body.String())
	assert.Equal(t, before, currentCalls)
}

func TestGateway_ForwardsRequestBody(t *testing.T) {
	var gotBody string
	current := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(data)
		gotBody = string(data)
		w.WriteHeader(http.StatusCreated)
	}))
	defer current.Close()
	legacy := echoBackend("legacy")
	defer legacy.Close()

	h := newHarness(t, current, legacy, map[string]bool{"owner-service": true})

	rec := h.do(http.MethodPost, "/owners", `{"lastName":"Davis"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"lastName":"Davis"}`, gotBody)
}
