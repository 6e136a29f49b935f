package dashboard

import (
	"bytes"
	"context"
	"os"
	"testing"

	"dashboard/internal/chart"
	"dashboard/internal/engine"
	"dashboard/internal/models"
	"dashboard/internal/render"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = models.Selectors{Year: 1957, Metric: models.Population, Country: "Germany"}

func newTestDashboard(t *testing.T, renderers ...render.Renderer) *Dashboard {
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
	if len(renderers) == 0 {
		renderers = []render.Renderer{render.NewHTML("")}
	}
	d, err := New(store, b, defaults, renderers...)
	require.NoError(t, err)
	return d
}

// captureLog redirects the package logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stdout) })
	return &buf
}

func keys(m map[Panel]*render.Document) []Panel {
	var out []Panel
	for _, p := range Panels() {
		if _, ok := m[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func TestAffected(t *testing.T) {
	tests := []struct {
		changed []models.Selector
		want    []Panel
	}{
		{nil, Panels()},
		{[]models.Selector{models.YearSelector}, []Panel{WorldMap, RankingChart, TrendChart}},
		{[]models.Selector{models.MetricSelector}, []Panel{WorldMap, RankingChart, TrendChart, OverviewChart}},
		{[]models.Selector{models.CountrySelector}, []Panel{CountryDetail, CountryLocation}},
		{[]models.Selector{models.CountrySelector, models.YearSelector}, []Panel{WorldMap, RankingChart, TrendChart, CountryDetail, CountryLocation}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Affected(tt.changed...), "changed %v", tt.changed)
	}
}

func TestUpdateInitialLoad(t *testing.T) {
	d := newTestDashboard(t)
	docs := d.Update(d.Defaults())
	require.Equal(t, Panels(), keys(docs))
	for p, doc := range docs {
		assert.False(t, doc.Empty, "%s is empty", p)
	}
}

func TestUpdateOnlyTouchesDependents(t *testing.T) {
	d := newTestDashboard(t)
	docs := d.Update(models.Selectors{Year: 1982, Metric: models.GDPPerCapita, Country: "Germany"}, models.YearSelector)
	assert.Equal(t, []Panel{WorldMap, RankingChart, TrendChart}, keys(docs))
}

func TestUnknownCountryDegrades(t *testing.T) {
	logs := captureLog(t)
	d := newTestDashboard(t)

	state := defaults
	state.Country = "Atlantis"
	docs := d.Update(state, models.CountrySelector)
	require.Len(t, docs, 2)
	assert.True(t, docs[CountryDetail].Empty)
	assert.True(t, docs[CountryLocation].Empty)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.NotContains(t, logs.String(), `"level":"ERROR"`)
}

func TestUnknownYearDegrades(t *testing.T) {
	captureLog(t)
	d := newTestDashboard(t)

	state := defaults
	state.Year = 1953
	docs := d.Update(state, models.YearSelector)
	assert.True(t, docs[WorldMap].Empty)
	assert.True(t, docs[RankingChart].Empty)
	assert.False(t, docs[TrendChart].Empty, "trend ignores the year filter")
}

func TestMissingPositionDegradesLocationOnly(t *testing.T) {
	captureLog(t)
	d := newTestDashboard(t)

	state := defaults
	state.Country = "Reunion"
	docs := d.Update(state, models.CountrySelector)
	assert.False(t, docs[CountryDetail].Empty)
	assert.True(t, docs[CountryLocation].Empty)
}

func TestInvalidMetricLogsError(t *testing.T) {
	logs := captureLog(t)
	d := newTestDashboard(t)

	state := defaults
	state.Metric = "bogus"
	doc, err := d.Render(RankingChart, state)
	require.NoError(t, err)
	assert.True(t, doc.Empty)
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
}

func TestRender(t *testing.T) {
	d := newTestDashboard(t, render.NewHTML(""), render.NewSVG())

	doc, err := d.Render(TrendChart, defaults)
	require.NoError(t, err)
	assert.Contains(t, doc.String(), "vegaEmbed")

	doc, err = d.RenderFormat(TrendChart, defaults, render.FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, doc.String(), "<svg")

	_, err = d.Render("pie_chart", defaults)
	var upe *UnknownPanelError
	assert.True(t, errors.As(err, &upe))
}

func TestRenderFormatNotConfigured(t *testing.T) {
	d := newTestDashboard(t)
	_, err := d.RenderFormat(TrendChart, defaults, render.FormatSVG)
	assert.Error(t, err)
}

func TestNewNeedsRenderer(t *testing.T) {
	_, err := New(nil, nil, defaults)
	assert.Error(t, err)
}

func TestParsePanel(t *testing.T) {
	p, err := ParsePanel(" World_Map ")
	require.NoError(t, err)
	assert.Equal(t, WorldMap, p)
	assert.Equal(t, "World Map", p.Title())

	_, err = ParsePanel("nope")
	assert.Error(t, err)
}

func TestDependsOn(t *testing.T) {
	assert.True(t, OverviewChart.DependsOn(models.MetricSelector))
	assert.False(t, OverviewChart.DependsOn(models.YearSelector))
	assert.False(t, Panel("nope").DependsOn(models.YearSelector))
}
