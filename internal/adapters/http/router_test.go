package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/webrtc-echo/internal/adapters/signal"
	"github.com/dkeye/webrtc-echo/internal/app"
	"github.com/dkeye/webrtc-echo/internal/config"
	"github.com/dkeye/webrtc-echo/internal/core/coretest"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOffers struct {
	err   error
	calls int
}

func (f *fakeOffers) HandleOffer(_ context.Context, offer domain.Description) (domain.Description, error) {
	f.calls++
	if f.err != nil {
		return domain.Description{}, f.err
	}
	return domain.Description{Type: domain.SDPTypeAnswer, SDP: coretest.AnswerSDP}, nil
}

type fixture struct {
	offers  *fakeOffers
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	deps    Deps
	cfg     *config.ServerConfig
}

func newFixture() *fixture {
	reg := prometheus.NewRegistry()
	f := &fixture{
		offers:  &fakeOffers{},
		metrics: metrics.New(reg),
		reg:     reg,
		cfg:     &config.ServerConfig{Mode: "test"},
	}
	f.deps = Deps{
		Offers:   f.offers,
		Metrics:  f.metrics,
		Gatherer: reg,
		Page:     []byte("<html>echo</html>"),
	}
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	r := SetupRouter(context.Background(), f.cfg, f.deps)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func offerJSON(typ string) string {
	b, _ := json.Marshal(domain.Description{Type: domain.SDPType(typ), SDP: coretest.OfferSDP})
	return string(b)
}

func TestOffer_Accepted(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/offer", offerJSON("offer"))

	require.Equal(t, http.StatusOK, w.Code)
	var answer domain.Description
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))
	assert.Equal(t, domain.SDPTypeAnswer, answer.Type)
	assert.Equal(t, coretest.AnswerSDP, answer.SDP)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Offers.WithLabelValues(metrics.OfferAccepted)))
}

func TestOffer_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"garbage":     "not json",
		"answer type": offerJSON("answer"),
		"bad sdp":     `{"type":"offer","sdp":"nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			w := f.do(http.MethodPost, "/offer", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, f.offers.calls, "engine must not be touched")
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Offers.WithLabelValues(metrics.OfferMalformed)))
		})
	}
}

func TestOffer_EngineFailureIs500(t *testing.T) {
	f := newFixture()
	f.offers.err = errors.New("ice agent exploded")

	w := f.do(http.MethodPost, "/offer", offerJSON("offer"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ice agent exploded")

	f.offers.err = nil
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/offer", offerJSON("offer")).Code, "server keeps serving")
}

func TestOffer_RateLimited(t *testing.T) {
	f := newFixture()
	f.deps.Limiter = signal.NewRateLimiter(1, time.Minute)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/offer", offerJSON("offer")).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/offer", offerJSON("offer")).Code)
	assert.Equal(t, 1, f.offers.calls)
}

func TestPage(t *testing.T) {
	f := newFixture()
	for _, path := range []string{"/", "/index.html"} {
		w := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<html>echo</html>", w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	}

	f.deps.Page = nil
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/", "").Code)
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/offer", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture()
	f.metrics.SessionInserted()

	w := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "echo_sessions_active 1")
}

func TestSessionsEndpoint(t *testing.T) {
	f := newFixture()
	reg := app.NewRegistry(4, nil, nil)
	reg.Insert(coretest.NewSession("sess-1"))
	f.deps.Sessions = reg

	w := f.do(http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count    int               `json:"count"`
		Sessions []app.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, domain.SessionID("sess-1"), body.Sessions[0].ID)
}

func TestLoadPage(t *testing.T) {
	page, err := LoadPage(filepath.Join(t.TempDir(), "missing.html"))
	require.NoError(t, err)
	assert.Nil(t, page)

	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))
	page, err = LoadPage(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), page)
}
