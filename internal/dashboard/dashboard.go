package dashboard

import (
	"fmt"
	"strings"
	"time"

	"dashboard/internal/chart"
	"dashboard/internal/engine"
	"dashboard/internal/models"
	"dashboard/internal/render"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
)

// Panel names one placeholder on the page.
type Panel string

const (
	WorldMap        Panel = "world_map"
	RankingChart    Panel = "ranking_chart"
	TrendChart      Panel = "trend_chart"
	OverviewChart   Panel = "overview_chart"
	CountryDetail   Panel = "country_detail"
	CountryLocation Panel = "country_location"
)

type panelDef struct {
	name  Panel
	title string
	deps  []models.Selector
	build func(*chart.Builder, models.Selectors) (*chart.Chart, error)
}

// panels is the page order.
var panels = []panelDef{
	{WorldMap, "World Map", []models.Selector{models.YearSelector, models.MetricSelector}, (*chart.Builder).Map},
	{RankingChart, "World Ranking", []models.Selector{models.YearSelector, models.MetricSelector}, (*chart.Builder).Ranking},
	{TrendChart, "World Trend", []models.Selector{models.YearSelector, models.MetricSelector}, (*chart.Builder).Trend},
	{OverviewChart, "All Countries", []models.Selector{models.MetricSelector}, (*chart.Builder).Overview},
	{CountryDetail, "Country Detail", []models.Selector{models.CountrySelector}, (*chart.Builder).CountryDetail},
	{CountryLocation, "Location", []models.Selector{models.CountrySelector}, (*chart.Builder).CountryLocation},
}

// UnknownPanelError is returned for a panel name that is not registered.
type UnknownPanelError struct {
	Panel string
}

func (e *UnknownPanelError) Error() string {
	return fmt.Sprintf("unknown panel %q", e.Panel)
}

func lookup(p Panel) (panelDef, error) {
	for _, def := range panels {
		if def.name == p {
			return def, nil
		}
	}
	return panelDef{}, &UnknownPanelError{Panel: string(p)}
}

func ParsePanel(s string) (Panel, error) {
	def, err := lookup(Panel(strings.ToLower(strings.TrimSpace(s))))
	if err != nil {
		return "", err
	}
	return def.name, nil
}

// Panels lists every panel in page order.
func Panels() []Panel {
	out := make([]Panel, len(panels))
	for i, def := range panels {
		out[i] = def.name
	}
	return out
}

// Title is the section heading of p.
func (p Panel) Title() string {
	def, err := lookup(p)
	if err != nil {
		return string(p)
	}
	return def.title
}

// DependsOn reports whether p is rebuilt when s changes.
func (p Panel) DependsOn(s models.Selector) bool {
	def, err := lookup(p)
	if err != nil {
		return false
	}
	for _, d := range def.deps {
		if d == s {
			return true
		}
	}
	return false
}

// Dashboard routes selector changes to the panels that depend on them.
// Every call recomputes from the store; nothing is cached between calls.
type Dashboard struct {
	store     *engine.ColumnStore
	builder   *chart.Builder
	renderers map[render.Format]render.Renderer
	format    render.Format
	defaults  models.Selectors
}

// New wires a dashboard. renderers must contain one renderer per format the
// caller will ask for; the first is the default.
func New(store *engine.ColumnStore, builder *chart.Builder, defaults models.Selectors, renderers ...render.Renderer) (*Dashboard, error) {
	if len(renderers) == 0 {
		return nil, errors.New("dashboard needs at least one renderer")
	}
	d := &Dashboard{
		store:     store,
		builder:   builder,
		renderers: make(map[render.Format]render.Renderer, len(renderers)),
		format:    renderers[0].Format(),
		defaults:  defaults,
	}
	for _, r := range renderers {
		d.renderers[r.Format()] = r
	}
	return d, nil
}

func (d *Dashboard) Store() *engine.ColumnStore { return d.store }

func (d *Dashboard) Builder() *chart.Builder { return d.builder }

func (d *Dashboard) Defaults() models.Selectors { return d.defaults }

// Affected returns the panels to rebuild after changed, in page order. No
// selectors means the initial load, which builds everything.
func Affected(changed ...models.Selector) []Panel {
	if len(changed) == 0 {
		return Panels()
	}
	var out []Panel
	for _, def := range panels {
		for _, s := range changed {
			if def.name.DependsOn(s) {
				out = append(out, def.name)
				break
			}
		}
	}
	return out
}

// Update rebuilds every panel affected by changed against state.
func (d *Dashboard) Update(state models.Selectors, changed ...models.Selector) map[Panel]*render.Document {
	t0 := time.Now()
	affected := Affected(changed...)
	out := make(map[Panel]*render.Document, len(affected))
	for _, p := range affected {
		def, _ := lookup(p)
		out[p] = d.build(def, state, d.renderers[d.format])
	}
	log.Debugf("Update %v -> %d panels in %v", changed, len(out), time.Since(t0))
	return out
}

// Render builds one panel with the default renderer.
func (d *Dashboard) Render(p Panel, state models.Selectors) (*render.Document, error) {
	return d.RenderFormat(p, state, d.format)
}

// RenderFormat builds one panel with the renderer for format. Only an
// unknown panel or format is an error; builder failures yield Empty.
func (d *Dashboard) RenderFormat(p Panel, state models.Selectors, format render.Format) (*render.Document, error) {
	def, err := lookup(p)
	if err != nil {
		return nil, err
	}
	r, ok := d.renderers[format]
	if !ok {
		return nil, errors.Errorf("no %s renderer configured", format)
	}
	return d.build(def, state, r), nil
}

func (d *Dashboard) build(def panelDef, state models.Selectors, r render.Renderer) (doc *render.Document) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("%s: panic: %v", def.name, rec)
			doc = render.Empty()
		}
	}()

	c, err := def.build(d.builder, state)
	if err == nil {
		doc, err = r.Render(c)
		if err == nil {
			return doc
		}
	}

	if engine.IsNotFound(err) || errors.Is(err, chart.ErrNoPosition) {
		log.Warnf("%s: %v", def.name, err)
	} else {
		log.Errorf("%s: %v", def.name, err)
	}
	return render.Empty()
}
