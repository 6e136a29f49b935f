package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dashboard/internal/chart"
	"dashboard/internal/dashboard"
	"dashboard/internal/engine"
	"dashboard/internal/models"
	"dashboard/internal/render"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, rps float64) *echo.Echo {
	t.Helper()
	store, err := engine.Load(context.Background(),
		"../engine/testdata/gapminder_sample.csv",
		"../engine/testdata/world_country_sample.csv")
	require.NoError(t, err)

	b := chart.NewBuilder(store, chart.Options{MapBounds: map[models.Metric]float64{
		models.Population:     2000,
		models.LifeExpectancy: 300,
		models.GDPPerCapita:   500,
	}})
	defaults := models.Selectors{Year: 1957, Metric: models.Population, Country: "Germany"}
	dash, err := dashboard.New(store, b, defaults, render.NewHTML(""), render.NewSVG())
	require.NoError(t, err)
	return NewEcho(NewHandler(dash, ""), rps)
}

func do(e *echo.Echo, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestIndex(t *testing.T) {
	e := newTestServer(t, 0)
	rec := do(e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		"<title>Our Changing World</title>",
		"What do you want to know?",
		"Choose year",
		"<h3>World Map</h3>",
		"<h3>World Ranking</h3>",
		"<h3>World Trend</h3>",
		`<option value="population" selected>Population</option>`,
		`<option value="Germany" selected>Germany</option>`,
		`min="1952" max="2007" step="5" value="1957"`,
		`id="ranking_chart" style="height: 400px" srcdoc="&lt;!DOCTYPE html&gt;`,
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "{{")
}

func TestGetChart(t *testing.T) {
	e := newTestServer(t, 0)

	rec := do(e, http.MethodGet, "/charts/ranking_chart?year=1962&metric=gdpPercap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML))
	assert.Contains(t, rec.Body.String(), "vegaEmbed")

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rec = do(e, http.MethodGet, "/charts/ranking_chart?year=1962&metric=gdpPercap", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = do(e, http.MethodGet, "/charts/ranking_chart?year=1967&metric=gdpPercap", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetChartSVG(t *testing.T) {
	e := newTestServer(t, 0)
	rec := do(e, http.MethodGet, "/charts/trend_chart?format=svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestGetChartErrors(t *testing.T) {
	e := newTestServer(t, 0)
	tests := []struct {
		target string
		code   int
	}{
		{"/charts/pie_chart", http.StatusNotFound},
		{"/charts/world_map?year=soon", http.StatusBadRequest},
		{"/charts/world_map?metric=happiness", http.StatusBadRequest},
		{"/charts/world_map?format=png", http.StatusBadRequest},
		// Lookup misses degrade to the empty document.
		{"/charts/country_detail?country=Atlantis", http.StatusOK},
		{"/charts/world_map?year=1953", http.StatusOK},
	}
	for _, tt := range tests {
		rec := do(e, http.MethodGet, tt.target, "")
		assert.Equal(t, tt.code, rec.Code, tt.target)
	}

	rec := do(e, http.MethodGet, "/charts/country_detail?country=Atlantis", "")
	assert.Equal(t, render.Empty().String(), rec.Body.String())
}

func TestGetUpdate(t *testing.T) {
	e := newTestServer(t, 0)

	var docs map[string]string
	rec := do(e, http.MethodGet, "/api/update?changed=year&year=1972&metric=lifeExp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &docs)
	assert.Len(t, docs, 3)
	for _, p := range []string{"world_map", "ranking_chart", "trend_chart"} {
		assert.Contains(t, docs[p], "vegaEmbed", p)
	}

	docs = nil
	rec = do(e, http.MethodGet, "/api/update", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &docs)
	assert.Len(t, docs, len(dashboard.Panels()))

	rec = do(e, http.MethodGet, "/api/update?changed=continent", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostUpdate(t *testing.T) {
	e := newTestServer(t, 0)

	var docs map[string]string
	rec := do(e, http.MethodPost, "/api/update", `{"changed":["country"],"country":"France"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &docs)
	assert.Len(t, docs, 2)
	assert.Contains(t, docs["country_detail"], "France")

	rec = do(e, http.MethodPost, "/api/update", `{"changed": "country"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/update", `{"changed":["metric"],"metric":"happiness"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSelectors(t *testing.T) {
	e := newTestServer(t, 0)
	rec := do(e, http.MethodGet, "/api/selectors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Years     []int            `json:"years"`
		Metrics   []metricOption   `json:"metrics"`
		Countries []string         `json:"countries"`
		Defaults  models.Selectors `json:"defaults"`
	}
	decodeBody(t, rec, &out)
	assert.Len(t, out.Years, 12)
	assert.Equal(t, 1952, out.Years[0])
	assert.Len(t, out.Metrics, 3)
	assert.Len(t, out.Countries, 14)
	assert.Equal(t, 1957, out.Defaults.Year)
}

type rankingPage struct {
	Data   []models.RankingRow `json:"data"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func TestGetRanking(t *testing.T) {
	e := newTestServer(t, 0)

	var page rankingPage
	rec := do(e, http.MethodGet, "/api/views/ranking?year=1957&metric=pop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &page)
	assert.Equal(t, 14, page.Total)
	require.Len(t, page.Data, 14)
	assert.Equal(t, "China", page.Data[0].Country)
	assert.Equal(t, "#1", page.Data[0].Label)

	page = rankingPage{}
	rec = do(e, http.MethodGet, "/api/views/ranking?year=1957&limit=5&offset=10", "")
	decodeBody(t, rec, &page)
	assert.Len(t, page.Data, 4)
	assert.Equal(t, 11, page.Data[0].Rank)

	page = rankingPage{}
	rec = do(e, http.MethodGet, "/api/views/ranking?year=1957&offset=20", "")
	decodeBody(t, rec, &page)
	assert.Empty(t, page.Data)
	assert.Equal(t, 14, page.Total)
}

func TestViews(t *testing.T) {
	e := newTestServer(t, 0)
	tests := []struct {
		target string
		code   int
	}{
		{"/api/views/trend?metric=gdpPercap", http.StatusOK},
		{"/api/views/map?year=2007", http.StatusOK},
		{"/api/views/map?year=1953", http.StatusNotFound},
		{"/api/views/ranking?year=1953", http.StatusNotFound},
		{"/api/views/country?country=France", http.StatusOK},
		{"/api/views/country?country=Atlantis", http.StatusNotFound},
		{"/api/views/overview?metric=lifeExp", http.StatusOK},
		{"/api/views/overview?metric=happiness", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(e, http.MethodGet, tt.target, "")
		assert.Equal(t, tt.code, rec.Code, tt.target)
	}

	var view models.MapView
	rec := do(e, http.MethodGet, "/api/views/map?year=2007&metric=population", "")
	decodeBody(t, rec, &view)
	assert.Len(t, view.Points, 13)
	assert.Equal(t, 2007, view.PeakYear)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, 0)
	rec := do(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Status string `json:"status"`
		Rows   int    `json:"rows"`
		Joined int    `json:"joined"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 167, out.Rows)
	assert.Equal(t, 156, out.Joined)
}

func TestRateLimit(t *testing.T) {
	e := newTestServer(t, 1)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodGet, "/healthz", "").Code)
}

func TestGzip(t *testing.T) {
	e := newTestServer(t, 0)
	rec := do(e, http.MethodGet, "/api/selectors", "", echo.HeaderAcceptEncoding, "gzip")
	assert.Equal(t, "gzip", rec.Header().Get(echo.HeaderContentEncoding))
}
