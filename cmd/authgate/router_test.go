package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"authgate/internal/config"
	"authgate/internal/telemetry"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioSecret = "s3cret"

func testConfig() *config.Config {
	return &config.Config{ServiceName: "authgate-test", AppEnv: "test"}
}

func gatedAdmission() config.Admission {
	return config.Admission{AuthAccess: "1", Secret: scenarioSecret, BypassPaths: config.DefaultBypassPaths}
}

func signScenarioToken(t *testing.T, exp int64) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp}).
		SignedString([]byte(scenarioSecret))
	require.NoError(t, err)
	return token
}

func do(t *testing.T, h http.Handler, path, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ScenarioAdmitted(t *testing.T) {
	r := buildRouter(RouterDeps{Cfg: testConfig(), Admission: config.StaticAdmission(gatedAdmission())})

	rec := do(t, r, "/api/me", "Bearer "+signScenarioToken(t, time.Now().Unix()+3600))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "u1", body.User["sub"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouter_ScenarioExpRewritten(t *testing.T) {
	r := buildRouter(RouterDeps{Cfg: testConfig(), Admission: config.StaticAdmission(gatedAdmission())})

	parts := strings.Split(signScenarioToken(t, time.Now().Unix()+3600), ".")
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"u1","exp":%d}`, time.Now().Unix()-10)))
	forged := parts[0] + "." + payload + "." + parts[2]

	rec := do(t, r, "/api/me", "Bearer "+forged)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Invalid token"}`, rec.Body.String())
}

func TestRouter_GatedPathWithoutHeader(t *testing.T) {
	r := buildRouter(RouterDeps{Cfg: testConfig(), Admission: config.StaticAdmission(gatedAdmission())})

	for _, path := range []string{"/api/me", "/api/unknown"} {
		rec := do(t, r, path, "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"error":"No token provided"}`, rec.Body.String(), path)
	}
}

func TestRouter_TestDBIsBypassed(t *testing.T) {
	r := buildRouter(RouterDeps{Cfg: testConfig(), Admission: config.StaticAdmission(gatedAdmission())})

	rec := do(t, r, "/api/test-db", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"postgres":"not_configured","redis":"not_configured"}`, rec.Body.String())
}

func TestRouter_KillSwitch(t *testing.T) {
	cfg := gatedAdmission()
	cfg.AuthAccess = "0"
	r := buildRouter(RouterDeps{Cfg: testConfig(), Admission: config.StaticAdmission(cfg)})

	rec := do(t, r, "/api/me", "Bearer garbage")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":null}`, rec.Body.String())
}

func TestRouter_EnvAdmissionReadPerRequest(t *testing.T) {
	t.Setenv("AUTH_ACCESS", "1")
	t.Setenv("JWT_SECRET", scenarioSecret)
	r := buildRouter(RouterDeps{Cfg: testConfig()})

	assert.Equal(t, http.StatusUnauthorized, do(t, r, "/api/me", "").Code)

	t.Setenv("AUTH_ACCESS", "0")
	assert.Equal(t, http.StatusOK, do(t, r, "/api/me", "").Code)
}

func TestRouter_PublicRoutesSkipGate(t *testing.T) {
	r := buildRouter(RouterDeps{Cfg: testConfig(), Admission: config.StaticAdmission(gatedAdmission())})

	for _, path := range []string{"/health", "/ready", "/openapi.yaml", "/docs", "/metrics"} {
		assert.Equal(t, http.StatusOK, do(t, r, path, "").Code, path)
	}
}

func TestRouter_RecordsAdmissionDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := telemetry.NewAdmissionMetrics(reg, nil)
	require.NoError(t, err)

	r := buildRouter(RouterDeps{
		Cfg:       testConfig(),
		Admission: config.StaticAdmission(gatedAdmission()),
		Recorder:  recorder,
		Registry:  reg,
	})

	do(t, r, "/api/me", "Bearer "+signScenarioToken(t, time.Now().Unix()+60))
	do(t, r, "/api/me", "Bearer "+signScenarioToken(t, time.Now().Unix()-60))
	do(t, r, "/api/me", "")
	do(t, r, "/api/test-db", "")

	expected := `
# HELP authgate_admission_decisions_total Admission decisions by outcome and failure reason.
# TYPE authgate_admission_decisions_total counter
authgate_admission_decisions_total{outcome="admitted",reason="none"} 1
authgate_admission_decisions_total{outcome="bypassed",reason="none"} 1
authgate_admission_decisions_total{outcome="rejected",reason="missing_authorization"} 1
authgate_admission_decisions_total{outcome="rejected",reason="token_expired"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "authgate_admission_decisions_total"))
}
