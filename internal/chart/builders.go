package chart

import (
	"math"
	"strconv"

	"dashboard/internal/engine"
	"dashboard/internal/models"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind identifies which builder produced a chart.
type Kind string

const (
	KindRanking         Kind = "ranking"
	KindTrend           Kind = "trend"
	KindMap             Kind = "map"
	KindCountryDetail   Kind = "country_detail"
	KindCountryLocation Kind = "country_location"
	KindOverview        Kind = "overview"
)

// DefaultBasemapURL is the world-110m TopoJSON from vega-datasets.
const DefaultBasemapURL = "https://cdn.jsdelivr.net/npm/vega-datasets@v1.29.0/data/world-110m.json"

// ErrNoPosition is returned by the location builder for a country that did
// not join a position.
var ErrNoPosition = errors.New("country has no position")

// Palette matches Vega's default categorical scheme so the static renderer
// colours continents the same way.
var Palette = []string{
	"#4c78a8", "#f58518", "#e45756", "#72b7b2", "#54a24b",
	"#eeca3b", "#b279a2", "#ff9da6", "#9d755d", "#bab0ac",
}

var printer = message.NewPrinter(language.English)

// Chart is one builder result: the derived view and its declarative spec.
type Chart struct {
	Kind  Kind
	Title string
	Spec  *Spec
	// View is the *models.XxxView the spec was built from.
	View interface{}
	// Continents is the colour domain, in palette order.
	Continents []string
}

// Options are the rendering constants that are not derived from data.
type Options struct {
	BasemapURL string
	// MapBounds is the upper marker size per metric before scaling by
	// the year's share of the peak total.
	MapBounds map[models.Metric]float64
}

// Builder turns selector state into charts. It holds no per-request state;
// every method recomputes from the store.
type Builder struct {
	store *engine.ColumnStore
	opts  Options
}

func NewBuilder(store *engine.ColumnStore, opts Options) *Builder {
	if opts.BasemapURL == "" {
		opts.BasemapURL = DefaultBasemapURL
	}
	return &Builder{store: store, opts: opts}
}

func (b *Builder) colorChannel() *Channel {
	continents := b.store.Continents()
	rng := make([]string, len(continents))
	for i := range continents {
		rng[i] = Palette[i%len(Palette)]
	}
	c := field("continent", "nominal", "Continent")
	c.Scale = &Scale{Domain: literal(continents), Range: literal(rng)}
	return c
}

var axisConfig = &Config{Axis: &AxisConfig{LabelFontSize: 14, TitleFontSize: 20}}

// Ranking is a horizontal bar per country in the selected year, longest
// first, with its rank label printed at the end of the bar.
func (b *Builder) Ranking(sel models.Selectors) (*Chart, error) {
	view, err := b.store.Ranking(sel.Year, sel.Metric)
	if err != nil {
		return nil, err
	}
	data, err := inline(view.Rows)
	if err != nil {
		return nil, err
	}

	x := field("value", "quantitative", sel.Metric.AxisTitle())
	y := field("country", "nominal", "Country")
	y.Sort = "-x"
	color := b.colorChannel()
	color.Legend = noLegend

	bar := &Spec{
		Mark: &Mark{Type: "bar"},
		Encoding: &Encoding{
			X: x, Y: y, Color: color,
			Tooltip: field("value", "quantitative", sel.Metric.Label()),
		},
	}
	text := &Spec{
		Mark: &Mark{Type: "text", Align: "left", Baseline: "middle", Dx: 3},
		Encoding: &Encoding{
			X: x, Y: y,
			Text: field("label", "nominal", ""),
		},
	}

	return &Chart{
		Kind:  KindRanking,
		Title: "World Ranking",
		View:  view,
		Spec: &Spec{
			Schema: SchemaURL,
			Width:  350,
			Data:   data,
			Layer:  []*Spec{bar, text},
			Config: axisConfig,
		},
		Continents: b.store.Continents(),
	}, nil
}

// Trend draws the per-continent mean of the metric over every year with a
// dashed rule at the selected year.
func (b *Builder) Trend(sel models.Selectors) (*Chart, error) {
	view, err := b.store.Trend(sel.Year, sel.Metric)
	if err != nil {
		return nil, err
	}
	points, err := inline(view.Points)
	if err != nil {
		return nil, err
	}
	marker, err := inline([]map[string]int{{"year": sel.Year}})
	if err != nil {
		return nil, err
	}

	line := &Spec{
		Data: points,
		Mark: &Mark{Type: "line"},
		Encoding: &Encoding{
			X:     field("year", "nominal", "Year"),
			Y:     field(string(sel.Metric), "quantitative", sel.Metric.AverageTitle()),
			Color: b.colorChannel(),
		},
	}
	rule := &Spec{
		Data: marker,
		Mark: &Mark{Type: "rule", StrokeDash: []int{10, 10}},
		Encoding: &Encoding{
			X: field("year", "nominal", ""),
		},
	}

	return &Chart{
		Kind:  KindTrend,
		Title: "World Trend",
		View:  view,
		Spec: &Spec{
			Schema: SchemaURL,
			Width:  350,
			Height: 300,
			Layer:  []*Spec{line, rule},
			Config: &Config{
				Axis:   axisConfig.Axis,
				Legend: &LegendConfig{TitleFontSize: 14},
			},
		},
		Continents: view.Continents,
	}, nil
}

// Bound returns the configured map size bound for m.
func (b *Builder) Bound(m models.Metric) (float64, error) {
	bound, ok := b.opts.MapBounds[m]
	if !ok {
		return 0, errors.Errorf("no map bound configured for %s", m)
	}
	return bound, nil
}

func (b *Builder) basemap() *Spec {
	return &Spec{
		Data: &Data{
			URL:    b.opts.BasemapURL,
			Format: &DataFormat{Type: "topojson", Feature: "countries"},
		},
		Mark: &Mark{Type: "geoshape", Fill: "lightgray", Stroke: "white"},
	}
}

// textAt is a constant text annotation placed in pixel coordinates.
func textAt(x, y, size int, color, text string) *Spec {
	return &Spec{
		Data: &Data{Values: json.RawMessage("[{}]")},
		Mark: &Mark{Type: "text", Align: "left", Baseline: "top"},
		Encoding: &Encoding{
			X:     value(x),
			Y:     value(y),
			Size:  value(size),
			Color: value(color),
			Text:  value(text),
		},
	}
}

// Map is one circle per positioned country over an equal-earth basemap.
func (b *Builder) Map(sel models.Selectors) (*Chart, error) {
	bound, err := b.Bound(sel.Metric)
	if err != nil {
		return nil, err
	}
	view, err := b.store.Map(sel.Year, sel.Metric, bound)
	if err != nil {
		return nil, err
	}
	data, err := inline(view.Points)
	if err != nil {
		return nil, err
	}

	size := field("value", "quantitative", sel.Metric.Label())
	size.Scale = &Scale{
		Domain: literal([]float64{0, view.MaxValue}),
		Range:  literal([]int{0, view.MaxSize}),
	}
	size.Legend = noLegend
	color := b.colorChannel()
	color.Legend = noLegend

	points := &Spec{
		Data: data,
		Mark: &Mark{Type: "circle"},
		Encoding: &Encoding{
			Longitude: field("lon", "quantitative", ""),
			Latitude:  field("lat", "quantitative", ""),
			Size:      size,
			Color:     color,
			Tooltip:   field("country", "nominal", "Country"),
		},
	}

	return &Chart{
		Kind:  KindMap,
		Title: "World Map",
		View:  view,
		Spec: &Spec{
			Schema:     SchemaURL,
			Width:      795,
			Height:     450,
			Projection: &Projection{Type: "equalEarth"},
			Layer: []*Spec{
				b.basemap(),
				points,
				textAt(680, 10, 50, "lightgray", strconv.Itoa(view.Year)),
				textAt(70, 10, 15, "gray", sel.Metric.Label()),
				textAt(70, 32, 12, "gray", TotalAnnotation(view)),
			},
		},
		Continents: b.store.Continents(),
	}, nil
}

// TotalAnnotation describes the year's metric sum against the peak year.
func TotalAnnotation(view *models.MapView) string {
	// Years go through %s so the printer does not group them.
	return printer.Sprintf("Total %s %d (%d%% of %s peak)",
		view.Metric.Label(),
		int64(math.Round(view.WorldTotal)),
		int(math.Round(view.Ratio*100)),
		strconv.Itoa(view.PeakYear))
}

// CountryDetail is three small bar charts, one per metric, over the
// country's full year range.
func (b *Builder) CountryDetail(sel models.Selectors) (*Chart, error) {
	view, err := b.store.CountryDetail(sel.Country)
	if err != nil {
		return nil, err
	}
	data, err := inline(view.Years)
	if err != nil {
		return nil, err
	}

	color := Palette[0]
	for i, c := range b.store.Continents() {
		if c == view.Continent {
			color = Palette[i%len(Palette)]
		}
	}

	panels := make([]*Spec, 0, len(models.Metrics))
	for _, m := range models.Metrics {
		panels = append(panels, &Spec{
			Title:  m.Label(),
			Width:  180,
			Height: 150,
			Mark:   &Mark{Type: "bar", Color: color},
			Encoding: &Encoding{
				X:       field("year", "ordinal", "Year"),
				Y:       field(string(m), "quantitative", m.AxisTitle()),
				Tooltip: field(string(m), "quantitative", m.Label()),
			},
		})
	}

	return &Chart{
		Kind:  KindCountryDetail,
		Title: view.Country,
		View:  view,
		Spec: &Spec{
			Schema:  SchemaURL,
			Title:   view.Country,
			Data:    data,
			HConcat: panels,
		},
		Continents: b.store.Continents(),
	}, nil
}

// CountryLocation marks the country on the basemap.
func (b *Builder) CountryLocation(sel models.Selectors) (*Chart, error) {
	view, err := b.store.CountryDetail(sel.Country)
	if err != nil {
		return nil, err
	}
	if !view.HasPosition {
		return nil, errors.Wrap(ErrNoPosition, view.Country)
	}

	data, err := inline([]map[string]interface{}{{
		"country": view.Country, "lat": view.Lat, "lon": view.Lon,
	}})
	if err != nil {
		return nil, err
	}

	point := &Spec{
		Data: data,
		Mark: &Mark{Type: "circle", Color: "#e45756", Size: 120, Opacity: 1},
		Encoding: &Encoding{
			Longitude: field("lon", "quantitative", ""),
			Latitude:  field("lat", "quantitative", ""),
			Tooltip:   field("country", "nominal", "Country"),
		},
	}

	return &Chart{
		Kind:  KindCountryLocation,
		Title: view.Country,
		View:  view,
		Spec: &Spec{
			Schema:     SchemaURL,
			Width:      400,
			Height:     250,
			Projection: &Projection{Type: "equalEarth"},
			Layer:      []*Spec{b.basemap(), point},
		},
		Continents: b.store.Continents(),
	}, nil
}

// Overview scatters the metric of every country against year and lets the
// user pan and zoom.
func (b *Builder) Overview(sel models.Selectors) (*Chart, error) {
	view, err := b.store.Overview(sel.Metric)
	if err != nil {
		return nil, err
	}
	data, err := inline(view.Points)
	if err != nil {
		return nil, err
	}

	x := field("year", "quantitative", "Year")
	x.Scale = &Scale{Domain: literal([]int{1950, 2007})}
	x.Format = "d"

	return &Chart{
		Kind:  KindOverview,
		Title: "Overview",
		View:  view,
		Spec: &Spec{
			Schema: SchemaURL,
			Width:  700,
			Height: 300,
			Data:   data,
			Mark:   &Mark{Type: "point"},
			Params: []Param{{Name: "grid", Select: "interval", Bind: "scales"}},
			Encoding: &Encoding{
				X:       x,
				Y:       field("value", "quantitative", sel.Metric.AxisTitle()),
				Color:   b.colorChannel(),
				Tooltip: field("country", "nominal", "Country"),
			},
		},
		Continents: b.store.Continents(),
	}, nil
}
