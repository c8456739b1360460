package internal

import (
	"net/http"
	"net/http/httptest"
	"streamflix/internal/controllers"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"streamflix/internal/structures"
	"streamflix/internal/testutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouteTestMux(svc *testutil.MockLedgerService) *http.ServeMux {
	conf := &structures.Config{Auth: structures.AuthConfig{DemoMode: true}}
	ac := controllers.NewApiController(&testutil.MockLogger{}, svc, testutil.NewMockCache(), providers.NewIdentityProvider(conf))

	mux := http.NewServeMux()
	for _, r := range InitRoutes(ac, conf).GetRoutes() {
		mux.Handle(r.Url, r.Handler)
	}
	return mux
}

func TestInitRoutes_RegistersLedgerRoutes(t *testing.T) {
	conf := &structures.Config{}
	ac := controllers.NewApiController(&testutil.MockLogger{}, &testutil.MockLedgerService{}, testutil.NewMockCache(), providers.NewIdentityProvider(conf))

	routes := InitRoutes(ac, conf).GetRoutes()
	require.Len(t, routes, 4)

	urls := make([]string, len(routes))
	for i, r := range routes {
		urls[i] = r.Url
	}
	assert.ElementsMatch(t, []string{
		"/metrics/seeding",
		"/metrics/user",
		"/metrics/user/history",
		"/metrics/leaderboard",
	}, urls)
}

func TestInitRoutes_MethodEnforcement(t *testing.T) {
	mux := newRouteTestMux(&testutil.MockLedgerService{})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/metrics/seeding"},
		{http.MethodPost, "/metrics/user"},
		{http.MethodPost, "/metrics/user/history"},
		{http.MethodPost, "/metrics/leaderboard"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(c.method, c.path, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "%s %s", c.method, c.path)
	}
}

func TestInitRoutes_Dispatch(t *testing.T) {
	svc := &testutil.MockLedgerService{
		Metrics: map[string]*models.UserMetrics{"u1": {UserID: "u1", Tokens: 3}},
		History: map[string][]models.HistoryEntry{"u1": {{ID: "h1", Amount: 3}}},
	}
	mux := newRouteTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/metrics/seeding", strings.NewReader(`{"contentId":"c1"}`))
	req.Header.Set("X-User-Id", "u1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, svc.CreditCalls, 1)

	for _, path := range []string{"/metrics/user", "/metrics/user/history"} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-User-Id", "u1")
		rr = httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics/leaderboard", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, svc.BoardCalls)
}
